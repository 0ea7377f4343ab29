// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"bgpsdn/message"
	"bgpsdn/topology"
)

// feedLink is a link received through the API, encoded as
// [destination, address, cost].
type feedLink topology.Link

var errInvalidLink = errors.New("link should be [destination, address, cost]")

func (l *feedLink) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return errInvalidLink
	}
	if len(raw) != 3 {
		return errInvalidLink
	}
	destination, ok1 := raw[0].(string)
	address, ok2 := raw[1].(string)
	cost, ok3 := raw[2].(float64)
	if !ok1 || !ok2 || !ok3 || destination == "" {
		return errInvalidLink
	}
	if cost < 0 || cost != math.Trunc(cost) || cost > math.MaxInt32 {
		return fmt.Errorf("invalid cost %v for link to %s", cost, destination)
	}
	*l = feedLink{Destination: destination, Address: address, Cost: int(cost)}
	return nil
}

func (m *Manager) postTopologyHandlerFunc(gc *gin.Context) {
	var input map[string][]feedLink
	if err := gc.ShouldBindJSON(&input); err != nil {
		gc.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	links := make(map[string][]topology.Link, len(input))
	for source, feed := range input {
		links[source] = make([]topology.Link, 0, len(feed))
		for _, link := range feed {
			links[source] = append(links[source], topology.Link(link))
		}
	}
	m.mailbox.Put(message.BuildTopology{Links: links})
	gc.JSON(http.StatusAccepted, gin.H{"message": "topology update queued"})
}

func (m *Manager) getTopologyHandlerFunc(gc *gin.Context) {
	gc.JSON(http.StatusOK, m.Snapshot())
}
