package domain

import "errors"

var (
	ErrInsufficientData    = errors.New("insufficient forecast data")
	ErrInvalidParameter    = errors.New("invalid parameter")
	ErrInfeasibleModel     = errors.New("infeasible model")
	ErrOptimizationFailed  = errors.New("optimization failed")
	ErrOptimizationTimeout = errors.New("optimization timed out")
)
