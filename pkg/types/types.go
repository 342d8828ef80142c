package types

import (
	"encoding/json"
	"time"

	"github.com/Layr-Labs/multiswap-go/pkg/persistence"
)

// Coin is an amount of a single denomination.
type Coin struct {
	Denom  string  `json:"denom"`
	Amount Uint128 `json:"amount"`
}

// NewCoin builds a Coin from a uint64 amount.
func NewCoin(denom string, amount uint64) Coin {
	return Coin{Denom: denom, Amount: NewUint128(amount)}
}

// Env carries the block context of an invocation.
type Env struct {
	ChainID  string    `json:"chain_id"`
	Height   uint64    `json:"height"`
	Time     time.Time `json:"time"`
	Contract string    `json:"contract"`
}

// MessageInfo identifies the caller and the funds moved to the contract
// before the call.
type MessageInfo struct {
	Sender string `json:"sender"`
	Funds  []Coin `json:"funds"`
}

type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Event is a structured log entry emitted by a successful invocation.
type Event struct {
	Type       string      `json:"type"`
	Attributes []Attribute `json:"attributes"`
}

// NewEvent creates an event of the given type.
func NewEvent(typ string) Event {
	return Event{Type: typ}
}

// Add appends an attribute and returns the event for chaining.
func (e Event) Add(key, value string) Event {
	e.Attributes = append(e.Attributes, Attribute{Key: key, Value: value})
	return e
}

// Get returns the value of the first attribute named key.
func (e Event) Get(key string) (string, bool) {
	for _, a := range e.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// BankSend moves coins from the executing contract to ToAddress.
type BankSend struct {
	ToAddress string `json:"to_address"`
	Amount    []Coin `json:"amount"`
}

// WasmExecute calls another contract with the executing contract as sender.
type WasmExecute struct {
	ContractAddr string          `json:"contract_addr"`
	Msg          json.RawMessage `json:"msg"`
	Funds        []Coin          `json:"funds"`
}

// Instruction is an effect returned to the host and executed after the
// contract call completes. Exactly one field is set.
type Instruction struct {
	BankSend    *BankSend    `json:"bank_send,omitempty"`
	WasmExecute *WasmExecute `json:"wasm_execute,omitempty"`
}

// Response is the result of a successful execute or instantiate.
type Response struct {
	Attributes   []Attribute   `json:"attributes,omitempty"`
	Events       []Event       `json:"events,omitempty"`
	Instructions []Instruction `json:"instructions,omitempty"`
}

// NewResponse returns an empty response.
func NewResponse() *Response {
	return &Response{}
}

func (r *Response) AddAttribute(key, value string) *Response {
	r.Attributes = append(r.Attributes, Attribute{Key: key, Value: value})
	return r
}

func (r *Response) AddEvent(e Event) *Response {
	r.Events = append(r.Events, e)
	return r
}

func (r *Response) AddInstruction(i Instruction) *Response {
	r.Instructions = append(r.Instructions, i)
	return r
}

// AddressAPI validates account and contract addresses for the host chain.
type AddressAPI interface {
	// ValidateAddress returns an error unless addr is a well-formed address
	// in its canonical form.
	ValidateAddress(addr string) error
}

// Deps are the host capabilities passed to every contract call.
type Deps struct {
	Storage persistence.KVStore
	API     AddressAPI
}

// Contract is the entry point set the host dispatches to. Messages are raw
// JSON; decoding and validation is the contract's responsibility.
type Contract interface {
	Instantiate(deps Deps, env Env, info MessageInfo, msg []byte) (*Response, error)
	Execute(deps Deps, env Env, info MessageInfo, msg []byte) (*Response, error)
	Query(deps Deps, env Env, msg []byte) ([]byte, error)
}
