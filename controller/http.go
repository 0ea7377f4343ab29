// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package controller

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"bgpsdn/message"
	"bgpsdn/peer"
)

type speakerStatus struct {
	Name string `json:"name"`
	Up   bool   `json:"up"`
}

type peersResponse struct {
	Degraded uint32          `json:"degraded"`
	Speakers []speakerStatus `json:"speakers"`
	Peers    []peer.Status   `json:"peers"`
}

func (c *Component) peersHandlerFunc(gc *gin.Context) {
	response := peersResponse{
		Degraded: c.Degraded(),
		Speakers: make([]speakerStatus, 0, len(c.speakers)),
		Peers:    make([]peer.Status, 0, len(c.peers)),
	}
	for _, s := range c.speakers {
		response.Speakers = append(response.Speakers, speakerStatus{Name: s.Name(), Up: s.Up()})
	}
	for _, p := range c.peers {
		response.Peers = append(response.Peers, p.Status())
	}
	slices.SortFunc(response.Peers, func(a, b peer.Status) int {
		return strings.Compare(a.Name, b.Name)
	})
	gc.JSON(http.StatusOK, response)
}

type tableStatus struct {
	Name        string         `json:"name"`
	ExportPeers []string       `json:"export-peers"`
	Routes      map[string]int `json:"routes"`
}

func (c *Component) tablesHandlerFunc(gc *gin.Context) {
	response := make([]tableStatus, 0, len(c.tables))
	for _, table := range c.tables {
		response = append(response, tableStatus{
			Name:        table.Name(),
			ExportPeers: table.ExportPeers(),
			Routes:      table.Routes(),
		})
	}
	gc.JSON(http.StatusOK, response)
}

type controlRequest struct {
	Table   string         `json:"table"`
	ASN     uint32         `json:"asn" binding:"required_without=Table"`
	Address string         `json:"address" binding:"required_without=Table"`
	Action  message.Action `json:"action" binding:"required,oneof=reload refresh"`
}

func (c *Component) controlHandlerFunc(gc *gin.Context) {
	var input controlRequest
	if err := gc.ShouldBindJSON(&input); err != nil {
		gc.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	msg := message.Control{
		Action:  input.Action,
		Table:   input.Table,
		ASN:     input.ASN,
		Address: input.Address,
	}
	if _, ok := c.controlTarget(msg); !ok {
		gc.JSON(http.StatusNotFound, gin.H{"message": "unknown peer or table"})
		return
	}
	c.mailbox.Put(msg)
	gc.JSON(http.StatusAccepted, gin.H{"message": "action queued"})
}
