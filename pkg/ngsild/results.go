package ngsild

import (
	"github.com/diwise/ngsild-client/pkg/ngsild/types/entities"
)

// QueryEntitiesResult streams the entities matched by a query. The Found
// channel is terminated by a nil sentinel. TotalCount is -1 unless the
// broker reported a result count.
type QueryEntitiesResult struct {
	Found      chan (*entities.Entity)
	TotalCount int64
}

func NewQueryEntitiesResult() *QueryEntitiesResult {
	qer := &QueryEntitiesResult{
		Found:      make(chan *entities.Entity),
		TotalCount: -1,
	}
	return qer
}
