package sunspec_modbus

import (
	"errors"
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

type StorageIntSFModbusClient struct {
	ModbusClient

	logger         *zap.Logger
	blocks         storageIntSFModbusBlocks
	expectedVendor string
}

func (st *StorageIntSFModbusClient) Open() error {
	if err := st.client.Open(); err != nil {
		return err
	}
	if err := st.survey(); err != nil {
		return err
	}
	return nil
}

func (st *StorageIntSFModbusClient) Close() error {
	return st.client.Close()
}

// register offsets from the start of each model, header included
const (
	commonManufacturer = 2
	commonModel        = 18
	commonVersion      = 42
	commonSerial       = 50

	storageWChaMax     = 2
	storageStorCtlMod  = 5
	storageChaState    = 8
	storageChaSt       = 11
	storageOutWRte     = 12
	storageRvrtTms     = 15
	storageWChaMaxSF   = 18
	storageChaStateSF  = 22
	storageInOutWRteSF = 25
)

func (st *StorageIntSFModbusClient) Validate() error {
	if st.expectedVendor == "" {
		return nil
	}
	vendor, err := st.readString(st.blocks.common+commonManufacturer, 32)
	if err != nil {
		return err
	}
	if vendor != st.expectedVendor {
		return fmt.Errorf("sunspec: expected a %s device, found %q", st.expectedVendor, vendor)
	}
	return nil
}

func (st *StorageIntSFModbusClient) GetInfo() (*StorageInfo, error) {
	info := &StorageInfo{}
	fields := []struct {
		offset uint16
		size   uint16
		dst    *string
	}{
		{commonManufacturer, 32, &info.Manufacturer},
		{commonModel, 32, &info.Model},
		{commonVersion, 16, &info.Version},
		{commonSerial, 32, &info.Serial},
	}
	for _, f := range fields {
		v, err := st.readString(st.blocks.common+f.offset, f.size)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}
	maxRate, err := st.maxChargeRate()
	if err != nil {
		return nil, err
	}
	info.MaxChargeRateWatt = uint32(maxRate)
	return info, nil
}

// GetStorageState reads the storage model in a single request. The
// reported charge is forced to zero while the battery is off.
func (st *StorageIntSFModbusClient) GetStorageState() (*StorageState, error) {
	base := st.blocks.storage + storageWChaMax
	regs, err := st.holdings(base, storageInOutWRteSF-storageWChaMax+1)
	if err != nil {
		return nil, err
	}
	reg := func(offset uint16) uint16 { return regs[offset-storageWChaMax] }

	status := reg(storageChaSt)
	soc := scaled(reg(storageChaState), reg(storageChaStateSF))
	if status == StorageChargeStatusOff {
		soc = 0
	}
	return &StorageState{
		StateOfCharge:     soc,
		MaxChargeRateWatt: uint32(scaled(reg(storageWChaMax), reg(storageWChaMaxSF))),
		ChargeStatus:      status,
		ChargeStatusStr:   StorageChargeStatusToString(status),
	}, nil
}

func (st *StorageIntSFModbusClient) SetStorageControl(params StorageControlParams) error {
	maxRate, err := st.maxChargeRate()
	if err != nil {
		return err
	}
	if maxRate <= 0 {
		return errors.New("sunspec: storage reports no charge rate")
	}
	outWRte, inWRte, controlOut, controlIn := storageControlRates(params, maxRate)
	st.logger.Debug("sunspec: storage control",
		zap.Float64("out_w_rte", outWRte), zap.Float64("in_w_rte", inWRte),
		zap.Bool("control_out", controlOut), zap.Bool("control_in", controlIn))
	return st.writeControl(outWRte, inWRte, storageControlFlags(controlOut, controlIn), int32(params.RevertTimeSeconds))
}

func (st *StorageIntSFModbusClient) ReleaseStorageControl() error {
	return st.writeControl(100, 100, storageControlFlags(false, false), -1)
}

// storageControlRates converts power limits into the OutWRte/InWRte percent
// pair of model 124. A negative rate forces the opposite flow.
func storageControlRates(params StorageControlParams, maxRateWatt float64) (outWRte, inWRte float64, controlOut, controlIn bool) {
	outWRte, inWRte = 100, 100
	if params.MinChargePowerWatt >= 0 {
		outWRte = -(float64(params.MinChargePowerWatt) / maxRateWatt) * 100
		controlOut = true
	}
	if params.MaxChargePowerWatt >= 0 {
		inWRte = (float64(params.MaxChargePowerWatt) / maxRateWatt) * 100
		controlIn = true
	}
	if params.MinDischargePowerWatt >= 0 {
		inWRte = -(float64(params.MinDischargePowerWatt) / maxRateWatt) * 100
		controlIn = true
	}
	if params.MaxDischargePowerWatt >= 0 {
		outWRte = (float64(params.MaxDischargePowerWatt) / maxRateWatt) * 100
		controlOut = true
	}
	return
}

func storageControlFlags(controlOut, controlIn bool) uint16 {
	control := uint16(0)
	if controlOut {
		control = control | 0x02
	}
	if controlIn {
		control = control | 0x01
	}
	return control
}

// writeControl writes the rates before the mode register. A negative revert
// time leaves the inverter timeout untouched.
func (st *StorageIntSFModbusClient) writeControl(outPercent, inPercent float64, mode uint16, revertSeconds int32) error {
	sf, err := st.holding(st.blocks.storage + storageInOutWRteSF)
	if err != nil {
		return err
	}
	rates := []uint16{
		uint16(int16(unscaled(outPercent, sf))),
		uint16(int16(unscaled(inPercent, sf))),
	}
	if err := st.write(st.blocks.storage+storageOutWRte, rates...); err != nil {
		return fmt.Errorf("sunspec: write rates: %w", err)
	}
	if err := st.write(st.blocks.storage+storageStorCtlMod, mode); err != nil {
		return fmt.Errorf("sunspec: write control mode: %w", err)
	}
	if revertSeconds < 0 {
		return nil
	}
	if err := st.write(st.blocks.storage+storageRvrtTms, uint16(revertSeconds)); err != nil {
		return fmt.Errorf("sunspec: write revert timeout: %w", err)
	}
	return nil
}

func (st *StorageIntSFModbusClient) maxChargeRate() (float64, error) {
	wChaMax, err := st.holding(st.blocks.storage + storageWChaMax)
	if err != nil {
		return 0, err
	}
	sf, err := st.holding(st.blocks.storage + storageWChaMaxSF)
	if err != nil {
		return 0, err
	}
	return scaled(wChaMax, sf), nil
}

func debugLoggerInstrumentation(logger *zap.Logger) ModbusInstrument {
	return ModbusInstrument{
		RecordTime: func(op string, elapsed time.Duration) {
			logger.Debug("modbus call", zap.String("op", op), zap.Duration("elapsed", elapsed))
		},
	}
}

// CreateStorageIntSFModbusClient connects to a SunSpec device exposing the
// storage model (124). An empty expectedVendor skips the manufacturer check.
func CreateStorageIntSFModbusClient(ip string, port uint, unitId uint8, timeout time.Duration,
	expectedVendor string, logger *zap.Logger, instrumentation *ModbusInstrument) (StorageModbusClient, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", ip, port),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("target", "storage"), zap.Uint8("unit", unitId))
	inst := []ModbusInstrument{debugLoggerInstrumentation(logger)}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}

	if unitId > 0 {
		err = client.SetUnitId(unitId)
		if err != nil {
			return nil, err
		}
	}

	return &StorageIntSFModbusClient{
		ModbusClient: ModbusClient{
			client:     client,
			instrument: inst,
		},
		logger:         logger,
		expectedVendor: expectedVendor,
	}, nil
}
