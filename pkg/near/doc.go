// Package near holds the NEAR protocol types this tool reads from and writes to an RPC
// endpoint: execution outcomes, account and code views, state patch records, yoctoNEAR
// amounts, ed25519 keys and signed transactions.
package near
