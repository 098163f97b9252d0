package sandbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/luxfi/log"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"

	"github.com/luxfi/gasreplay/pkg/application"
	"github.com/luxfi/gasreplay/pkg/near"
	"github.com/luxfi/gasreplay/pkg/rpc/rpctest"
)

func fakeChain(server *rpctest.Server, blockHash string, nonce uint64) {
	server.Handle("block", func(json.RawMessage) (interface{}, error) {
		return near.BlockView{Header: near.BlockHeader{Height: 10, Hash: blockHash}}, nil
	})
	server.HandleQuery("view_access_key", func(json.RawMessage) (interface{}, error) {
		return near.AccessKeyView{Nonce: nonce, Permission: json.RawMessage(`"FullAccess"`)}, nil
	})
	server.Handle("broadcast_tx_commit", func(json.RawMessage) (interface{}, error) {
		value := base64.StdEncoding.EncodeToString([]byte(`"ok"`))
		return near.FinalExecutionOutcome{Status: near.ExecutionStatus{SuccessValue: &value}}, nil
	})
}

func patchedRecords(server *rpctest.Server) []near.StateRecord {
	reqs := server.Requests("sandbox_patch_state")
	Expect(reqs).To(HaveLen(1))
	var params struct {
		Records []near.StateRecord `json:"records"`
	}
	Expect(json.Unmarshal(reqs[0].Params, &params)).To(Succeed())
	return params.Records
}

var _ = Describe("Sandbox", func() {
	var (
		ctx       context.Context
		local     *rpctest.Server
		remote    *rpctest.Server
		app       *application.GasReplay
		rootKey   *near.KeyPair
		sb        *Sandbox
		blockHash string
	)

	BeforeEach(func() {
		ctx = context.Background()
		local = rpctest.NewServer()
		remote = rpctest.NewServer()
		blockHash = near.EncodeHash([32]byte{7, 7, 7})
		fakeChain(local, blockHash, 41)

		app = application.New()
		Expect(app.Setup(log.NewLogger("test"), viper.New(), GinkgoWriter)).To(Succeed())

		var err error
		rootKey, err = near.GenerateKeyPair()
		Expect(err).NotTo(HaveOccurred())

		client := app.Client("sandbox", local.URL)
		sb = &Sandbox{
			app:    app,
			client: client,
			remote: app.Client("remote", remote.URL),
			root:   NewAccount("test.near", rootKey, client),
		}
	})

	AfterEach(func() {
		local.Close()
		remote.Close()
	})

	Describe("Account", func() {
		It("signs with the next nonce and the latest block hash", func() {
			outcome, err := sb.Root().Call(ctx, "dao.test.near", "get_policy", map[string]int{"id": 1}, CallOptions{})
			Expect(err).NotTo(HaveOccurred())

			var value string
			Expect(outcome.DecodeSuccessValue(&value)).To(Succeed())
			Expect(value).To(Equal("ok"))

			hash, err := near.DecodeHash(blockHash)
			Expect(err).NotTo(HaveOccurred())
			expected, err := (&near.Transaction{
				SignerID:   "test.near",
				PublicKey:  rootKey.PublicKey(),
				Nonce:      42,
				ReceiverID: "dao.test.near",
				BlockHash:  hash,
				Actions: []near.Action{near.FunctionCall{
					MethodName: "get_policy",
					Args:       []byte(`{"id":1}`),
					Gas:        DefaultGas,
				}},
			}).Sign(rootKey)
			Expect(err).NotTo(HaveOccurred())
			encoded, err := expected.Base64()
			Expect(err).NotTo(HaveOccurred())

			reqs := local.Requests("broadcast_tx_commit")
			Expect(reqs).To(HaveLen(1))
			Expect(string(reqs[0].Params)).To(Equal(`["` + encoded + `"]`))
		})

		It("returns the outcome together with an execution failure", func() {
			local.Handle("broadcast_tx_commit", func(json.RawMessage) (interface{}, error) {
				return json.RawMessage(`{"status":{"Failure":{"ActionError":{"index":0,"kind":{"FunctionCallError":{"ExecutionError":"Exceeded the prepaid gas."}}}}},"transaction":{"hash":"abc"},"transaction_outcome":{"id":"abc","outcome":{"status":"Unknown"}},"receipts_outcome":[]}`), nil
			})

			outcome, err := sb.Root().Call(ctx, "dao.test.near", "act_proposal", nil, CallOptions{Gas: 300 * near.TGas})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("Exceeded the prepaid gas."))
			Expect(outcome).NotTo(BeNil())
			Expect(outcome.Status.IsFailure()).To(BeTrue())
		})

		It("reads the balance", func() {
			local.HandleQuery("view_account", func(json.RawMessage) (interface{}, error) {
				return near.AccountView{Amount: near.NEAR(10).Dec(), CodeHash: near.EmptyCodeHash}, nil
			})
			balance, err := sb.Root().Balance(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(balance.Eq(near.NEAR(10))).To(BeTrue())
		})
	})

	Describe("ImportContract", func() {
		code := []byte("\x00asm\x01\x00\x00\x00")

		It("copies code without state under a fresh key", func() {
			remote.HandleQuery("view_account", func(json.RawMessage) (interface{}, error) {
				return near.AccountView{Amount: "5", Locked: "0", CodeHash: "8ZyEnD9YFq2mwL8xH5K6T9jmvTnKmCz2kWi5qPUSgbma"}, nil
			})
			remote.HandleQuery("view_code", func(json.RawMessage) (interface{}, error) {
				return near.ContractCodeView{CodeBase64: base64.StdEncoding.EncodeToString(code)}, nil
			})
			local.Handle("sandbox_patch_state", func(json.RawMessage) (interface{}, error) {
				return struct{}{}, nil
			})

			acc, err := sb.ImportContract(ctx, ImportOptions{AccountID: "dao.near", InitialBalance: near.NEAR(1)})
			Expect(err).NotTo(HaveOccurred())
			Expect(acc.ID()).To(Equal("dao.near"))

			records := patchedRecords(local)
			Expect(records).To(HaveLen(3))
			Expect(records[0].Account.Account.Amount).To(Equal(near.NEAR(1).Dec()))
			Expect(records[0].Account.Account.StorageUsage).To(Equal(uint64(len(code) + accountStorage + accessKeyStorage)))
			Expect(records[1].Contract.Code).To(Equal(base64.StdEncoding.EncodeToString(code)))
			Expect(records[2].AccessKey.PublicKey).To(Equal(acc.Key().PublicKeyString()))
			Expect(records[2].AccessKey.AccessKey.Permission).To(Equal(near.FullAccessPermission))
		})

		It("imports accounts without code as plain accounts", func() {
			remote.HandleQuery("view_account", func(json.RawMessage) (interface{}, error) {
				return near.AccountView{Amount: "5", Locked: "0", CodeHash: near.EmptyCodeHash}, nil
			})
			local.Handle("sandbox_patch_state", func(json.RawMessage) (interface{}, error) {
				return struct{}{}, nil
			})

			_, err := sb.ImportContract(ctx, ImportOptions{AccountID: "approver.near"})
			Expect(err).NotTo(HaveOccurred())

			records := patchedRecords(local)
			Expect(records).To(HaveLen(2))
			Expect(records[0].Account.Account.Amount).To(Equal("5"))
			Expect(records[1].AccessKey).NotTo(BeNil())
			Expect(remote.Requests("query")).To(HaveLen(1))
		})

		It("creates accounts unknown to the remote", func() {
			local.Handle("sandbox_patch_state", func(json.RawMessage) (interface{}, error) {
				return struct{}{}, nil
			})

			_, err := sb.ImportContract(ctx, ImportOptions{AccountID: "missing.near", InitialBalance: near.NEAR(1)})
			Expect(err).NotTo(HaveOccurred())
			Expect(patchedRecords(local)[0].Account.Account.CodeHash).To(Equal(near.EmptyCodeHash))
		})
	})

	Describe("CreateSubAccount", func() {
		It("creates, funds and keys the account from root", func() {
			acc, err := sb.CreateSubAccount(ctx, "alice", near.NEAR(10))
			Expect(err).NotTo(HaveOccurred())
			Expect(acc.ID()).To(Equal("alice.test.near"))
			Expect(acc.Key()).NotTo(BeNil())
			Expect(local.Requests("broadcast_tx_commit")).To(HaveLen(1))
		})
	})

	Describe("TearDown", func() {
		It("removes an owned home once", func() {
			home, err := os.MkdirTemp("", "gasreplay-test-")
			Expect(err).NotTo(HaveOccurred())
			sb.home = home
			sb.ownsHome = true

			Expect(sb.TearDown()).To(Succeed())
			Expect(sb.TearDown()).To(Succeed())
			_, err = os.Stat(home)
			Expect(os.IsNotExist(err)).To(BeTrue())
		})
	})

	Describe("Start", func() {
		It("fails when the binary cannot be found", func() {
			_, err := Start(ctx, app, Options{Binary: filepath.Join(GinkgoT().TempDir(), "near-sandbox")})
			Expect(err).To(MatchError(ContainSubstring(BinaryEnv)))
		})
	})

	Describe("initHome", func() {
		It("skips init when the home was initialized by an earlier run", func() {
			sb.home = GinkgoT().TempDir()
			Expect(os.WriteFile(filepath.Join(sb.home, "config.json"), []byte(`{}`), 0o600)).To(Succeed())

			missing := filepath.Join(GinkgoT().TempDir(), "near-sandbox")
			Expect(sb.initHome(ctx, missing)).To(Succeed())
		})

		It("runs init on a fresh home", func() {
			sb.home = GinkgoT().TempDir()

			missing := filepath.Join(GinkgoT().TempDir(), "near-sandbox")
			Expect(sb.initHome(ctx, missing)).To(MatchError(ContainSubstring("sandbox init failed")))
		})
	})

	Describe("loadValidatorKey", func() {
		It("accepts secret_key and private_key", func() {
			key, err := near.GenerateKeyPair()
			Expect(err).NotTo(HaveOccurred())
			dir := GinkgoT().TempDir()

			for _, field := range []string{"secret_key", "private_key"} {
				path := filepath.Join(dir, field+".json")
				data, err := json.Marshal(map[string]string{"account_id": "test.near", field: key.SecretKeyString()})
				Expect(err).NotTo(HaveOccurred())
				Expect(os.WriteFile(path, data, 0o600)).To(Succeed())

				vk, err := loadValidatorKey(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(vk.AccountID).To(Equal("test.near"))
				Expect(vk.key.PublicKeyString()).To(Equal(key.PublicKeyString()))
			}
		})
	})
})
