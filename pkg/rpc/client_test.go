package rpc_test

import (
	"context"
	"encoding/base64"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/luxfi/gasreplay/pkg/near"
	"github.com/luxfi/gasreplay/pkg/rpc"
	"github.com/luxfi/gasreplay/pkg/rpc/rpctest"
)

var _ = Describe("Client", func() {
	var (
		server  *rpctest.Server
		client  *rpc.Client
		metrics *rpc.Metrics
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = rpctest.NewServer()

		var err error
		metrics, err = rpc.NewMetrics("test", prometheus.NewRegistry())
		Expect(err).NotTo(HaveOccurred())
		client = rpc.New(server.URL, rpc.WithMetrics(metrics, "remote"))
	})

	AfterEach(func() {
		server.Close()
	})

	It("sends tx lookups with named params", func() {
		server.Handle("tx", func(params json.RawMessage) (interface{}, error) {
			return json.RawMessage(`{"status":{"SuccessValue":""},"transaction":{"hash":"h","signer_id":"aurora"},"receipts_outcome":[{"id":"r1","outcome":{"executor_id":"aurora","gas_burnt":5,"status":"Unknown","logs":[]}}]}`), nil
		})

		outcome, err := client.Tx(ctx, "h", "aurora")
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.Transaction.SignerID).To(Equal("aurora"))
		Expect(outcome.ReceiptsOutcome).To(HaveLen(1))
		Expect(outcome.ReceiptsOutcome[0].Outcome.GasBurnt).To(Equal(uint64(5)))

		reqs := server.Requests("tx")
		Expect(reqs).To(HaveLen(1))
		Expect(string(reqs[0].Params)).To(MatchJSON(`{"tx_hash":"h","sender_account_id":"aurora"}`))
	})

	It("surfaces JSON-RPC errors with their cause", func() {
		server.Handle("tx", func(json.RawMessage) (interface{}, error) {
			return nil, &rpctest.Error{
				Code:    -32000,
				Message: "Server error",
				Name:    "HANDLER_ERROR",
				Cause:   &rpctest.Cause{Name: "UNKNOWN_TRANSACTION"},
			}
		})

		_, err := client.Tx(ctx, "h", "aurora")
		Expect(err).To(HaveOccurred())

		var rerr *rpc.Error
		Expect(err).To(BeAssignableToTypeOf(rerr))
		Expect(rpc.IsCause(err, "UNKNOWN_TRANSACTION")).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("UNKNOWN_TRANSACTION"))
		Expect(testutil.ToFloat64(rpc.RequestCounter(metrics, "remote", "tx", "error"))).To(Equal(1.0))
	})

	It("encodes view args as base64 and decodes JSON results", func() {
		server.HandleView("dao.near", "get_proposal", func(args json.RawMessage) (interface{}, error) {
			var in struct {
				ID int `json:"id"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return map[string]interface{}{"id": in.ID, "status": "InProgress"}, nil
		})

		var out struct {
			ID     int    `json:"id"`
			Status string `json:"status"`
		}
		Expect(client.ViewFunction(ctx, "dao.near", "get_proposal", map[string]int{"id": 3}, &out)).To(Succeed())
		Expect(out.ID).To(Equal(3))
		Expect(out.Status).To(Equal("InProgress"))

		var params struct {
			Finality   string `json:"finality"`
			ArgsBase64 string `json:"args_base64"`
		}
		Expect(json.Unmarshal(server.Requests("query")[0].Params, &params)).To(Succeed())
		Expect(params.Finality).To(Equal(near.FinalityFinal))
		decoded, err := base64.StdEncoding.DecodeString(params.ArgsBase64)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(decoded)).To(MatchJSON(`{"id":3}`))
		Expect(testutil.ToFloat64(rpc.RequestCounter(metrics, "remote", "query", "ok"))).To(Equal(1.0))
	})

	It("reports in-result query errors with their logs", func() {
		server.HandleQuery("call_function", func(json.RawMessage) (interface{}, error) {
			return map[string]interface{}{
				"error": "wasm execution failed with error: MethodNotFound",
				"logs":  []string{"panicked"},
			}, nil
		})

		err := client.ViewFunction(ctx, "token.near", "ft_metadata", nil, nil)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("MethodNotFound"))
		Expect(rpc.ErrorLogs(err)).To(ConsistOf("panicked"))
	})

	It("reads accounts, code and access keys", func() {
		server.HandleQuery("view_account", func(json.RawMessage) (interface{}, error) {
			return near.AccountView{Amount: "5", CodeHash: near.EmptyCodeHash, StorageUsage: 182}, nil
		})
		server.HandleQuery("view_code", func(json.RawMessage) (interface{}, error) {
			return near.ContractCodeView{CodeBase64: "AGFzbQ==", Hash: "abc"}, nil
		})
		server.HandleQuery("view_access_key", func(json.RawMessage) (interface{}, error) {
			return near.AccessKeyView{Nonce: 11, BlockHash: "bh"}, nil
		})

		acc, err := client.ViewAccount(ctx, "alice.near")
		Expect(err).NotTo(HaveOccurred())
		Expect(acc.HasContract()).To(BeFalse())

		code, err := client.ViewCode(ctx, "alice.near")
		Expect(err).NotTo(HaveOccurred())
		Expect(code.Hash).To(Equal("abc"))

		key, err := client.ViewAccessKey(ctx, "alice.near", "ed25519:xyz")
		Expect(err).NotTo(HaveOccurred())
		Expect(key.Nonce).To(Equal(uint64(11)))
	})

	It("broadcasts signed transactions as base64", func() {
		kp, err := near.GenerateKeyPair()
		Expect(err).NotTo(HaveOccurred())
		signed, err := (&near.Transaction{
			SignerID:   "alice.test.near",
			PublicKey:  kp.PublicKey(),
			Nonce:      1,
			ReceiverID: "bob.test.near",
			Actions:    []near.Action{near.Transfer{Deposit: near.NEAR(1)}},
		}).Sign(kp)
		Expect(err).NotTo(HaveOccurred())

		server.Handle("broadcast_tx_commit", func(params json.RawMessage) (interface{}, error) {
			return json.RawMessage(`{"status":{"SuccessValue":""},"transaction":{"hash":"` + signed.HashString() + `"},"receipts_outcome":[]}`), nil
		})

		outcome, err := client.BroadcastTxCommit(ctx, signed)
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.Err()).NotTo(HaveOccurred())

		var params []string
		Expect(json.Unmarshal(server.Requests("broadcast_tx_commit")[0].Params, &params)).To(Succeed())
		expected, err := signed.Base64()
		Expect(err).NotTo(HaveOccurred())
		Expect(params).To(Equal([]string{expected}))
	})
})

var _ = Describe("EncodeArgs", func() {
	It("passes raw bytes through and defaults nil to an empty object", func() {
		out, err := rpc.EncodeArgs(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(Equal("{}"))

		out, err = rpc.EncodeArgs([]byte(`{"a":1}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(Equal(`{"a":1}`))

		out, err = rpc.EncodeArgs(map[string]string{"account_id": "x"})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(MatchJSON(`{"account_id":"x"}`))
	})
})
