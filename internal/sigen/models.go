package sigen

// EnergyFlow is the real-time power snapshot for a station. Channels the
// station does not have (EV charger, generator, heat pump) come back null
// from the vendor, hence the pointers.
type EnergyFlow struct {
	PVPower         *float64 `json:"pvPower"`
	LoadPower       *float64 `json:"loadPower"`
	BatterySOC      *float64 `json:"batterySoc"`
	BuySellPower    *float64 `json:"buySellPower"`
	BatteryPower    *float64 `json:"batteryPower"`
	PVDayEnergy     *float64 `json:"pvDayNrg"`
	ACPower         *float64 `json:"acPower"`
	EVPower         *float64 `json:"evPower"`
	GeneratorPower  *float64 `json:"generatorPower"`
	HeatPumpPower   *float64 `json:"heatPumpPower"`
	ThirdPVPower    *float64 `json:"thirdPvPower"`
	OnGrid          *bool    `json:"onGrid"`
	StationStatus   *float64 `json:"stationStatus"`
	OnOffGridStatus *float64 `json:"onOffGridStatus"`
}

// ConsumptionStats carries the daily total plus per-hour detail rows.
type ConsumptionStats struct {
	BaseLoadConsumption *float64            `json:"baseLoadConsumption"`
	Details             []ConsumptionDetail `json:"consumptionDetailList"`
}

// ConsumptionDetail is one hourly bucket. DataTime is the vendor's
// "YYYYMMDD HH:MM" local-time format.
type ConsumptionDetail struct {
	DataTime            string   `json:"dataTime"`
	BaseLoadConsumption *float64 `json:"baseLoadConsumption"`
}

// SunTimes holds sunrise/sunset as "HH:MM" station-local clock times.
type SunTimes struct {
	SunriseTime string `json:"sunriseTime"`
	SunsetTime  string `json:"sunsetTime"`
}

// StationInfo is the station metadata from the owner home endpoint.
type StationInfo struct {
	StationName     string  `json:"stationName"`
	PVCapacity      float64 `json:"pvCapacity"`
	BatteryCapacity float64 `json:"batteryCapacity"`
	HasBattery      bool    `json:"hasBattery"`
	OffGrid         bool    `json:"offGrid"`
}
