package service

import (
	"fmt"
	"time"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
	"github.com/berfenger/batteryplan2mqtt/pkg/sunspec_modbus"
)

const (
	WORKING_MODE_TOU              = "time_of_use_luna2000"
	WORKING_MODE_FULLY_FED        = "fully_fed_to_grid"
	WORKING_MODE_SELF_CONSUMPTION = "maximise_self_consumption"
)

// a period that never matches, clears any charge window on the inverter
const TOU_PERIOD_NONE = "00:00-00:01/1/-"

// DecisionCommand is the retained payload published for the inverter
// integration that applies the working mode.
type DecisionCommand struct {
	Mode                 domain.OperatingMode `json:"mode"`
	WorkingMode          string               `json:"working_mode"`
	TOUPeriods           []string             `json:"tou_periods"`
	MaxFeedGridPowerWatt uint32               `json:"max_feed_grid_power_watt"`
	ChargePowerWatt      uint32               `json:"charge_power_watt"`
	Start                time.Time            `json:"start"`
	End                  time.Time            `json:"end"`
}

func DecisionCommandPayload(decision domain.OperatingDecision) DecisionCommand {
	cmd := DecisionCommand{
		Mode:                 decision.Mode,
		MaxFeedGridPowerWatt: decision.FeedGridPowerWatt,
		ChargePowerWatt:      decision.ChargePowerWatt,
		Start:                decision.Start,
		End:                  decision.End,
	}
	switch decision.Mode {
	case domain.OperatingModeTOUCharge:
		cmd.WorkingMode = WORKING_MODE_TOU
		cmd.TOUPeriods = []string{touPeriod(decision.Start, decision.End, true)}
	case domain.OperatingModeFeedToGrid:
		cmd.WorkingMode = WORKING_MODE_FULLY_FED
		cmd.TOUPeriods = []string{}
	case domain.OperatingModeTOUNone:
		cmd.WorkingMode = WORKING_MODE_TOU
		cmd.TOUPeriods = []string{TOU_PERIOD_NONE}
	default:
		cmd.WorkingMode = WORKING_MODE_SELF_CONSUMPTION
		cmd.TOUPeriods = []string{}
	}
	return cmd
}

// touPeriod formats a Luna2000 time-of-use window: "HH:MM-HH:MM/<days>/<+|->"
// where days are 1 (Monday) to 7 (Sunday).
func touPeriod(start, end time.Time, charge bool) string {
	weekday := int(start.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	endClock := end.Format("15:04")
	if endClock == "00:00" {
		endClock = "23:59"
	}
	sign := "-"
	if charge {
		sign = "+"
	}
	return fmt.Sprintf("%s-%s/%d/%s", start.Format("15:04"), endClock, weekday, sign)
}

// StorageControlForDecision maps a decision to SunSpec storage control
// values. release is true when the inverter should run on its own logic.
func StorageControlForDecision(decision domain.OperatingDecision, revertSeconds uint32) (sunspec_modbus.StorageControlParams, bool) {
	params := sunspec_modbus.StorageControlParams{
		MinChargePowerWatt:    -1,
		MaxChargePowerWatt:    -1,
		MinDischargePowerWatt: -1,
		MaxDischargePowerWatt: -1,
		RevertTimeSeconds:     revertSeconds,
	}
	switch decision.Mode {
	case domain.OperatingModeTOUCharge:
		params.MinChargePowerWatt = int32(decision.ChargePowerWatt)
	case domain.OperatingModeFeedToGrid:
		params.MinDischargePowerWatt = int32(decision.FeedGridPowerWatt)
	case domain.OperatingModeTOUNone:
		// hold
		params.MaxDischargePowerWatt = 0
	default:
		return params, true
	}
	return params, false
}
