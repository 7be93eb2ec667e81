package fiware

import (
	"strings"
	"testing"

	"github.com/diwise/ngsild-client/pkg/ngsild/types/entities"

	"github.com/matryer/is"
)

func TestNewDevicePrefixesTheEntityID(t *testing.T) {
	is := is.New(t)

	device, err := NewDevice("mydevice", entities.Status("on"))
	is.NoErr(err)

	is.Equal(device.ID(), "urn:ngsi-ld:Device:mydevice")
	is.Equal(device.Type(), DeviceTypeName)
}

func TestNewDeviceRequiresAtLeastOneProperty(t *testing.T) {
	is := is.New(t)

	_, err := NewDevice("mydevice")
	is.True(err != nil)
}

func TestNewRoomKeepsAnAlreadyPrefixedID(t *testing.T) {
	is := is.New(t)

	room, err := NewRoom("urn:ngsi-ld:Room:R1", entities.Temperature(21.2))
	is.NoErr(err)

	is.Equal(room.ID(), "urn:ngsi-ld:Room:R1")
}

func TestNewWeatherObservedAddsLocationAndObservationTime(t *testing.T) {
	is := is.New(t)

	wo, err := NewWeatherObserved("obs1", 62.39, 17.30, "2026-08-26T06:00:00Z", entities.Temperature(16.4))
	is.NoErr(err)

	body, err := wo.MarshalJSON()
	is.NoErr(err)

	is.True(strings.Contains(string(body), `"dateObserved"`))
	is.True(strings.Contains(string(body), `"location"`))
	is.True(strings.Contains(string(body), `"GeoProperty"`))
}
