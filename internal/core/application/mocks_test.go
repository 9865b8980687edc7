package application_test

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/thanhpk/randstr"

	"github.com/kiosknetwork/kiosk-daemon/internal/core/ports"
)

// walletServiceMock is a stateful in-memory stand-in for the wallet daemon
// RPC client.
type walletServiceMock struct {
	mtx sync.Mutex

	incoming        map[string][]ports.Transfer
	incomingErr     map[string]error
	incomingErrOnce map[string]error
	outgoing        []ports.Transfer

	transferTxid    string
	transferErr     error
	transferErrOnce []error
	transferCalls   []transferCall

	capability      *ports.SpendCapability
	capabilityCalls int

	pingErr error
}

type transferCall struct {
	address string
	amount  decimal.Decimal
}

func newWalletServiceMock() *walletServiceMock {
	return &walletServiceMock{
		incoming:        map[string][]ports.Transfer{},
		incomingErr:     map[string]error{},
		incomingErrOnce: map[string]error{},
		transferTxid:    randstr.Hex(32),
		capability:      &ports.SpendCapability{SpendCapable: true},
	}
}

func (m *walletServiceMock) Ping(_ context.Context) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.pingErr
}

func (m *walletServiceMock) GetAddress(_ context.Context) (string, error) {
	return "primary-address", nil
}

func (m *walletServiceMock) NewReceivingAddress(
	_ context.Context, _ string,
) (string, error) {
	return randstr.Hex(32), nil
}

func (m *walletServiceMock) GetHeight(_ context.Context) (uint64, error) {
	return 1000, nil
}

func (m *walletServiceMock) GetIncomingTransfers(
	_ context.Context, address string,
) ([]ports.Transfer, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if err := m.incomingErrOnce[address]; err != nil {
		delete(m.incomingErrOnce, address)
		return nil, err
	}
	if err := m.incomingErr[address]; err != nil {
		return nil, err
	}
	return m.incoming[address], nil
}

func (m *walletServiceMock) GetOutgoingTransfers(
	_ context.Context,
) ([]ports.Transfer, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.outgoing, nil
}

func (m *walletServiceMock) Transfer(
	_ context.Context, address string, amount decimal.Decimal,
) (string, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if len(m.transferErrOnce) > 0 {
		err := m.transferErrOnce[0]
		m.transferErrOnce = m.transferErrOnce[1:]
		return "", err
	}
	if m.transferErr != nil {
		return "", m.transferErr
	}
	m.transferCalls = append(m.transferCalls, transferCall{address, amount})
	return m.transferTxid, nil
}

func (m *walletServiceMock) SpendCapability(
	_ context.Context,
) (*ports.SpendCapability, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.capabilityCalls++
	return m.capability, nil
}

func (m *walletServiceMock) setIncoming(address string, transfers ...ports.Transfer) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.incoming[address] = transfers
}

func (m *walletServiceMock) setTransferErr(err error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.transferErr = err
}

func (m *walletServiceMock) failTransferOnce(err error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.transferErrOnce = append(m.transferErrOnce, err)
}

func (m *walletServiceMock) failIncomingOnce(address string, err error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.incomingErrOnce[address] = err
}

func (m *walletServiceMock) setOutgoing(transfers ...ports.Transfer) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.outgoing = transfers
}

func (m *walletServiceMock) numTransferCalls() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return len(m.transferCalls)
}

var _ ports.WalletService = (*walletServiceMock)(nil)

// supervisorMock tracks start/stop requests without spawning anything.
type supervisorMock struct {
	mtx sync.Mutex

	startCalls   int
	stopCalls    int
	lastNodeAddr string
	startErr     error
}

func (m *supervisorMock) Start(_ context.Context, nodeAddr string) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.startCalls++
	m.lastNodeAddr = nodeAddr
	return nil
}

func (m *supervisorMock) Stop(_ context.Context) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.stopCalls++
	return nil
}

func (m *supervisorMock) Status() ports.WalletStatus {
	return ports.WalletStatus{State: "ready"}
}

func (m *supervisorMock) Healthy() bool { return true }

func (m *supervisorMock) MarkUnresponsive() {}

var _ ports.WalletSupervisor = (*supervisorMock)(nil)

// pubsubMock records published events for assertions.
type pubsubMock struct {
	mtx    sync.Mutex
	events []ports.Event
}

func (m *pubsubMock) Publish(event ports.Event) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.events = append(m.events, event)
}

func (m *pubsubMock) Subscribe(_ ...ports.EventType) <-chan ports.Event {
	return make(chan ports.Event)
}

func (m *pubsubMock) Close() {}

func (m *pubsubMock) eventsOfType(eventType ports.EventType) []ports.Event {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	events := make([]ports.Event, 0)
	for _, e := range m.events {
		if e.Type == eventType {
			events = append(events, e)
		}
	}
	return events
}

var _ ports.PubSubService = (*pubsubMock)(nil)
