package fiware

import "github.com/diwise/ngsild-client/pkg/ngsild/urn"

const (
	//AirQualityObservedTypeName is a type name constant for AirQualityObserved
	AirQualityObservedTypeName string = "AirQualityObserved"
	//AirQualityObservedIDPrefix contains the mandatory prefix for AirQualityObserved ID:s
	AirQualityObservedIDPrefix string = urn.Scheme + AirQualityObservedTypeName + ":"
	//DeviceTypeName is a type name constant for Device
	DeviceTypeName string = "Device"
	//DeviceIDPrefix contains the mandatory prefix for Device ID:s
	DeviceIDPrefix string = urn.Scheme + DeviceTypeName + ":"
	//RoomTypeName is a type name constant for Room
	RoomTypeName string = "Room"
	//RoomIDPrefix contains the mandatory prefix for Room ID:s
	RoomIDPrefix string = urn.Scheme + RoomTypeName + ":"
	//WeatherObservedTypeName is a type name constant for WeatherObserved
	WeatherObservedTypeName string = "WeatherObserved"
	//WeatherObservedIDPrefix contains the mandatory prefix for WeatherObserved ID:s
	WeatherObservedIDPrefix string = urn.Scheme + WeatherObservedTypeName + ":"
)
