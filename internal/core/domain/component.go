package domain

// Device groups entities in Home Assistant.
type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

// Entity holds the fields shared by every Home Assistant component the
// bridge announces.
type Entity struct {
	Device   Device
	Id       string
	Name     string
	UniqueId string
	Icon     string
}

func NewEntity(device Device, id, name, icon string) Entity {
	return Entity{
		Device:   device,
		Id:       id,
		Name:     name,
		UniqueId: uniqueId(device.Id, id),
		Icon:     icon,
	}
}

type GenericSensor struct {
	Entity
	SensorType        string
	UnitOfMeasurement string
	StateClass        string // measurement, total
	DeviceClass       string // power, energy_storage, monetary
	EntityCategory    string // diagnostic, config
	EnabledByDefault  *bool
	HasAttributes     bool
}

type GenericSwitch struct {
	Entity
}

type GenericButton struct {
	Entity
}

type GenericInputNumber struct {
	Entity
	Min               float64
	Max               float64
	Step              float64
	Mode              string
	UnitOfMeasurement string
	InitialValue      float64
}
