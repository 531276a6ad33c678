package sunspec_modbus

import (
	"errors"
	"fmt"
)

const (
	SUNSPEC_WK_COMMON  = 1
	SUNSPEC_WK_STORAGE = 124
)

const SUNSPEC_BASE_ADDR = 40000

const (
	sunspecMarker   = "SunS"
	sunspecEndModel = 0xFFFF
	maxSurveyModels = 20
)

var errNotSunSpec = errors.New("sunspec: no SunS marker at base address")

// storageIntSFModbusBlocks holds the start address of each model the
// storage client reads.
type storageIntSFModbusBlocks struct {
	common  uint16
	storage uint16
}

func (blk storageIntSFModbusBlocks) complete() bool {
	return blk.common > 0 && blk.storage > 0
}

// survey walks the model chain after the SunS marker until both the common
// and storage models have been located.
func (st *StorageIntSFModbusClient) survey() error {
	marker, err := st.readString(SUNSPEC_BASE_ADDR, 4)
	if err != nil {
		return err
	}
	if marker != sunspecMarker {
		return errNotSunSpec
	}

	var blocks storageIntSFModbusBlocks
	addr := uint16(SUNSPEC_BASE_ADDR + 2)
	for n := 0; n < maxSurveyModels && !blocks.complete(); n++ {
		header, err := st.holdings(addr, 2)
		if err != nil {
			return fmt.Errorf("sunspec: model header at %d: %w", addr, err)
		}
		id, length := header[0], header[1]
		if id == sunspecEndModel {
			break
		}
		switch id {
		case SUNSPEC_WK_COMMON:
			blocks.common = addr
		case SUNSPEC_WK_STORAGE:
			blocks.storage = addr
		}
		addr += length + 2
	}
	if !blocks.complete() {
		return fmt.Errorf("sunspec: common (%t) and storage (%t) models required",
			blocks.common > 0, blocks.storage > 0)
	}
	st.blocks = blocks
	return nil
}
