package sunspec_modbus

import (
	"sync"
)

// TestStorageModbusClient is an in-memory storage device. It records the
// last control request so callers can assert on it.
type TestStorageModbusClient struct {
	mu           sync.Mutex
	state        StorageState
	lastControl  *StorageControlParams
	released     bool
	controlCalls int
	failWith     error
}

func CreateTestStorageModbusClient() *TestStorageModbusClient {
	return &TestStorageModbusClient{
		state: StorageState{
			StateOfCharge:     23.5,
			MaxChargeRateWatt: 5260,
			ChargeStatus:      StorageChargeStatusCharging,
			ChargeStatusStr:   StorageChargeStatusToString(StorageChargeStatusCharging),
		},
	}
}

func (st *TestStorageModbusClient) Open() error {
	return nil
}

func (st *TestStorageModbusClient) Close() error {
	return nil
}

func (st *TestStorageModbusClient) Validate() error {
	return nil
}

func (st *TestStorageModbusClient) GetInfo() (*StorageInfo, error) {
	return &StorageInfo{
		Manufacturer:      "BatteryPlan",
		Model:             "Test Storage 10",
		Version:           "1.0.0",
		Serial:            "TS0001",
		MaxChargeRateWatt: st.state.MaxChargeRateWatt,
	}, nil
}

func (st *TestStorageModbusClient) GetStorageState() (*StorageState, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.failWith != nil {
		return nil, st.failWith
	}
	state := st.state
	return &state, nil
}

func (st *TestStorageModbusClient) SetStorageControl(params StorageControlParams) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.lastControl = &params
	st.released = false
	st.controlCalls++
	return nil
}

func (st *TestStorageModbusClient) ReleaseStorageControl() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.lastControl = nil
	st.released = true
	st.controlCalls++
	return nil
}

func (st *TestStorageModbusClient) SetStateOfCharge(percent float64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state.StateOfCharge = percent
}

// FailReads makes every state read return err until called with nil.
func (st *TestStorageModbusClient) FailReads(err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.failWith = err
}

// LastControl returns the last applied control, nil after a release.
func (st *TestStorageModbusClient) LastControl() (*StorageControlParams, bool, int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lastControl, st.released, st.controlCalls
}

var _ StorageModbusClient = (*TestStorageModbusClient)(nil)
