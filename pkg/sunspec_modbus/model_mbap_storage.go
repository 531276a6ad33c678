package sunspec_modbus

import (
	"fmt"
)

// ChaSt values of model 124
const (
	StorageChargeStatusOff         = 1
	StorageChargeStatusEmpty       = 2
	StorageChargeStatusDischarging = 3
	StorageChargeStatusCharging    = 4
	StorageChargeStatusFull        = 5
	StorageChargeStatusHolding     = 6
	StorageChargeStatusTest        = 7
)

var chargeStatusNames = map[uint16]string{
	StorageChargeStatusOff:         "off",
	StorageChargeStatusEmpty:       "empty",
	StorageChargeStatusDischarging: "discharging",
	StorageChargeStatusCharging:    "charging",
	StorageChargeStatusFull:        "full",
	StorageChargeStatusHolding:     "holding",
	StorageChargeStatusTest:        "test",
}

func StorageChargeStatusToString(status uint16) string {
	if name, ok := chargeStatusNames[status]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", status)
}

// StorageInfo is the nameplate of the device, read from the common model.
type StorageInfo struct {
	Manufacturer      string
	Model             string
	Version           string
	Serial            string
	MaxChargeRateWatt uint32
}

type StorageState struct {
	StateOfCharge     float64 // percent
	MaxChargeRateWatt uint32
	ChargeStatus      uint16
	ChargeStatusStr   string
}

// StoredEnergyKWh converts the state of charge into energy for a battery of
// the given usable capacity.
func (s *StorageState) StoredEnergyKWh(capacityKWh float64) float64 {
	return s.StateOfCharge / 100 * capacityKWh
}

// Power values set to -1 are left uncontrolled.
type StorageControlParams struct {
	MinChargePowerWatt    int32
	MaxChargePowerWatt    int32
	MinDischargePowerWatt int32
	MaxDischargePowerWatt int32
	RevertTimeSeconds     uint32
}

type StorageModbusClient interface {
	Open() error
	Close() error
	Validate() error
	GetInfo() (*StorageInfo, error)
	GetStorageState() (*StorageState, error)
	SetStorageControl(params StorageControlParams) error
	ReleaseStorageControl() error
}
