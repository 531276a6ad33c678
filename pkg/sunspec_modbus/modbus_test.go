package sunspec_modbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	USE_MOCKED_CLIENT = true
)

func TestStorageControlRates(t *testing.T) {

	assert := assert.New(t)

	out, in, cOut, cIn := storageControlRates(StorageControlParams{
		MinChargePowerWatt:    2500,
		MaxChargePowerWatt:    -1,
		MinDischargePowerWatt: -1,
		MaxDischargePowerWatt: -1,
	}, 5000)
	assert.Equal(-50.0, out)
	assert.Equal(100.0, in)
	assert.True(cOut)
	assert.False(cIn)

	out, in, cOut, cIn = storageControlRates(StorageControlParams{
		MinChargePowerWatt:    -1,
		MaxChargePowerWatt:    -1,
		MinDischargePowerWatt: 1000,
		MaxDischargePowerWatt: -1,
	}, 5000)
	assert.Equal(100.0, out)
	assert.Equal(-20.0, in)
	assert.False(cOut)
	assert.True(cIn)

	// hold
	out, _, cOut, cIn = storageControlRates(StorageControlParams{
		MinChargePowerWatt:    -1,
		MaxChargePowerWatt:    -1,
		MinDischargePowerWatt: -1,
		MaxDischargePowerWatt: 0,
	}, 5000)
	assert.Zero(out)
	assert.True(cOut)
	assert.False(cIn)

	assert.EqualValues(0x03, storageControlFlags(true, true))
	assert.EqualValues(0x02, storageControlFlags(true, false))
	assert.EqualValues(0x00, storageControlFlags(false, false))
}

func TestScaleFactors(t *testing.T) {

	assert := assert.New(t)

	// sf is a signed exponent
	assert.InDelta(52.3, scaled(523, uint16(0xFFFF)), 1e-9)
	assert.InDelta(5200, scaled(52, 2), 1e-9)
	assert.InDelta(-500, unscaled(-50, uint16(0xFFFF)), 1e-9)
}

func TestStorageChargeStatusToString(t *testing.T) {

	assert := assert.New(t)

	assert.Equal("charging", StorageChargeStatusToString(StorageChargeStatusCharging))
	assert.Equal("holding", StorageChargeStatusToString(StorageChargeStatusHolding))
	assert.Equal("unknown(42)", StorageChargeStatusToString(42))
}

func TestStorageState(t *testing.T) {

	require := require.New(t)

	client := StorageClient()
	require.NoError(client.Open())
	require.NoError(client.Validate())

	info, err := client.GetInfo()
	require.NoError(err)
	require.NotEmpty(info.Manufacturer)

	state, err := client.GetStorageState()
	require.NoError(err)
	require.GreaterOrEqual(state.StateOfCharge, 0.0)
	require.LessOrEqual(state.StateOfCharge, 100.0)
	require.InDelta(state.StateOfCharge/10, state.StoredEnergyKWh(10), 1e-9)
}

func TestStorageControl(t *testing.T) {

	require := require.New(t)

	client := StorageClient()
	require.NoError(client.Open())

	require.NoError(client.SetStorageControl(StorageControlParams{
		MinChargePowerWatt:    3000,
		MaxChargePowerWatt:    -1,
		MinDischargePowerWatt: -1,
		MaxDischargePowerWatt: -1,
		RevertTimeSeconds:     900,
	}))
	require.NoError(client.ReleaseStorageControl())

	if mocked, ok := client.(*TestStorageModbusClient); ok {
		last, released, calls := mocked.LastControl()
		require.Nil(last)
		require.True(released)
		require.Equal(2, calls)
	}
}

func RealStorageClient() StorageModbusClient {
	logger := zap.Must(zap.NewDevelopment())
	client, err := CreateStorageIntSFModbusClient("-.-.-.-", 502, 1, 1*time.Second, "", logger, nil)
	if err != nil {
		panic(err)
	}
	return client
}

func StorageClient() StorageModbusClient {
	if USE_MOCKED_CLIENT {
		return CreateTestStorageModbusClient()
	} else {
		return RealStorageClient()
	}
}
