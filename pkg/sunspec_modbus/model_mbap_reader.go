package sunspec_modbus

import (
	"bytes"
	"math"
	"time"

	"github.com/simonvetter/modbus"
)

// ModbusClient wraps the raw register access of a SunSpec device. Every call
// is reported to the configured instruments.
type ModbusClient struct {
	client     *modbus.ModbusClient
	instrument []ModbusInstrument
}

type ModbusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

func timed[T any](instruments []ModbusInstrument, op string, call func() (T, error)) (T, error) {
	start := time.Now()
	v, err := call()
	elapsed := time.Since(start)
	for _, in := range instruments {
		if in.RecordTime != nil {
			in.RecordTime(op, elapsed)
		}
	}
	return v, err
}

// scaled applies a SunSpec scale factor register, which is a signed power of ten.
func scaled(value uint16, sf uint16) float64 {
	return float64(value) * math.Pow10(int(int16(sf)))
}

func unscaled(value float64, sf uint16) float64 {
	return value / math.Pow10(int(int16(sf)))
}

// readString decodes a NUL padded string of size registers.
func (mc ModbusClient) readString(address uint16, size uint16) (string, error) {
	raw, err := timed(mc.instrument, "ReadRawBytes", func() ([]byte, error) {
		return mc.client.ReadRawBytes(address, size, modbus.HOLDING_REGISTER)
	})
	if err != nil {
		return "", err
	}
	if end := bytes.IndexByte(raw, 0); end >= 0 {
		raw = raw[:end]
	}
	return string(raw), nil
}

func (mc ModbusClient) holding(addr uint16) (uint16, error) {
	return timed(mc.instrument, "ReadRegister", func() (uint16, error) {
		return mc.client.ReadRegister(addr, modbus.HOLDING_REGISTER)
	})
}

func (mc ModbusClient) holdings(addr uint16, quantity uint16) ([]uint16, error) {
	return timed(mc.instrument, "ReadRegisters", func() ([]uint16, error) {
		return mc.client.ReadRegisters(addr, quantity, modbus.HOLDING_REGISTER)
	})
}

func (mc ModbusClient) write(addr uint16, values ...uint16) error {
	op := "WriteRegisters"
	if len(values) == 1 {
		op = "WriteRegister"
	}
	_, err := timed(mc.instrument, op, func() (struct{}, error) {
		if len(values) == 1 {
			return struct{}{}, mc.client.WriteRegister(addr, values[0])
		}
		return struct{}{}, mc.client.WriteRegisters(addr, values)
	})
	return err
}
