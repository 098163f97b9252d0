package scanner_test

import (
	"bytes"
	"context"
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
	"github.com/luxfi/gasreplay/pkg/scanner"
)

const (
	txHash = "7XiaQG8YVv5BsJQETBG9iEDrSag6TyCcpGe6f5jAm3LF"
	sender = "aurora"
)

var _ = Describe("Scanner", func() {
	var (
		server *rpctest.Server
		app    *application.GasReplay
		out    *bytes.Buffer
	)

	BeforeEach(func() {
		fixture, err := os.ReadFile(filepath.Join("testdata", "tx_7XiaQG8Y.json"))
		Expect(err).NotTo(HaveOccurred())

		server = rpctest.NewServer()
		server.Handle("tx", func(params json.RawMessage) (interface{}, error) {
			var p struct {
				TxHash string `json:"tx_hash"`
				Sender string `json:"sender_account_id"`
			}
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, err
			}
			if p.TxHash != txHash || p.Sender != sender {
				return nil, &rpctest.Error{Code: -32000, Message: "Server error", Cause: &rpctest.Cause{Name: "UNKNOWN_TRANSACTION"}}
			}
			return json.RawMessage(fixture), nil
		})

		out = &bytes.Buffer{}
		app = application.New()
		Expect(app.Setup(log.NewLogger("test"), viper.New(), out)).To(Succeed())
	})

	AfterEach(func() {
		server.Close()
	})

	It("reports exactly the receipt that exceeded its prepaid gas", func() {
		s := scanner.New(app, app.Client("remote", server.URL))

		matches, err := s.Scan(context.Background(), txHash, sender)
		Expect(err).NotTo(HaveOccurred())
		Expect(matches).To(HaveLen(1))
		Expect(matches[0].Index).To(Equal(1))
		Expect(matches[0].Receipt.ID).To(Equal("C8yqv6kSm3fPB7Wd1fUxDzK4HpQDSj9GfNwUx3dVK4qK"))
		Expect(matches[0].Receipt.Outcome.ExecutorID).To(Equal("observant-machine.sputnik-dao.near"))

		Expect(scanner.Print(out, matches)).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Found gas exhaustion in receipt: C8yqv6kSm3fPB7Wd1fUxDzK4HpQDSj9GfNwUx3dVK4qK"))
		Expect(out.String()).To(ContainSubstring("Gas burnt: 30000000000000"))
		Expect(out.String()).To(ContainSubstring(`"ExecutionError": "Exceeded the prepaid gas."`))
	})

	It("propagates RPC failures", func() {
		s := scanner.New(app, app.Client("remote", server.URL))

		_, err := s.Scan(context.Background(), txHash, "someone-else")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("UNKNOWN_TRANSACTION"))
	})
})

var _ = Describe("IsGasExhaustion", func() {
	decode := func(raw string) near.ExecutionStatus {
		var s near.ExecutionStatus
		Expect(json.Unmarshal([]byte(raw), &s)).To(Succeed())
		return s
	}

	It("matches only the exact execution error text", func() {
		Expect(scanner.IsGasExhaustion(decode(`{"Failure":{"ActionError":{"index":0,"kind":{"FunctionCallError":{"ExecutionError":"Exceeded the prepaid gas."}}}}}`))).To(BeTrue())
		Expect(scanner.IsGasExhaustion(decode(`{"Failure":{"ActionError":{"index":0,"kind":{"FunctionCallError":{"ExecutionError":"Exceeded the prepaid gas"}}}}}`))).To(BeFalse())
		Expect(scanner.IsGasExhaustion(decode(`{"Failure":{"ActionError":{"index":0,"kind":{"FunctionCallError":{"HostError":{"GasExceeded":null}}}}}}`))).To(BeFalse())
		Expect(scanner.IsGasExhaustion(decode(`{"Failure":{"InvalidTxError":{"NotEnoughBalance":{}}}}`))).To(BeFalse())
		Expect(scanner.IsGasExhaustion(decode(`{"SuccessValue":""}`))).To(BeFalse())
		Expect(scanner.IsGasExhaustion(decode(`"Unknown"`))).To(BeFalse())
	})
})
