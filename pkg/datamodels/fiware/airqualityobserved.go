package fiware

import (
	"fmt"
	"strings"

	"github.com/diwise/ngsild-client/pkg/ngsild/types/entities"
)

//NewAirQualityObserved creates a new instance of AirQualityObserved
func NewAirQualityObserved(observationID string, latitude float64, longitude float64, observedAt string, decorators ...entities.EntityDecoratorFunc) (*entities.Entity, error) {

	if len(decorators) == 0 {
		return nil, fmt.Errorf("at least one property must be set in an airqualityobserved entity")
	}

	if !strings.HasPrefix(observationID, AirQualityObservedIDPrefix) {
		observationID = AirQualityObservedIDPrefix + observationID
	}

	decorators = append(decorators, entities.DateObserved(observedAt), entities.Location(latitude, longitude))

	e, err := entities.New(
		observationID, AirQualityObservedTypeName,
		decorators...,
	)

	return e, err
}
