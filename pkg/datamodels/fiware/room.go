package fiware

import (
	"fmt"
	"strings"

	"github.com/diwise/ngsild-client/pkg/ngsild/types/entities"
)

//NewRoom creates a new instance of Room
func NewRoom(entityID string, decorators ...entities.EntityDecoratorFunc) (*entities.Entity, error) {

	if len(decorators) == 0 {
		return nil, fmt.Errorf("at least one property must be set in a room entity")
	}

	if !strings.HasPrefix(entityID, RoomIDPrefix) {
		entityID = RoomIDPrefix + entityID
	}

	e, err := entities.New(
		entityID, RoomTypeName,
		decorators...,
	)

	return e, err
}
