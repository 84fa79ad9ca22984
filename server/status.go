package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andydunstall/broadcast/broadcast"
	"github.com/andydunstall/broadcast/server/status"
)

// NodeStatus describes the local node.
type NodeStatus struct {
	ID      string   `json:"id"`
	NodeIDs []string `json:"node_ids"`
	Values  int      `json:"values"`
}

// Status exposes the broadcast node state in the status API.
type Status struct {
	server *Server
}

func NewStatus(server *Server) *Status {
	return &Status{
		server: server,
	}
}

func (s *Status) Register(group *gin.RouterGroup) {
	group.GET("/node", s.nodeRoute)
	group.GET("/values", s.valuesRoute)
	group.GET("/neighbors", s.neighborsRoute)
	group.GET("/neighbors/:id", s.neighborRoute)
	group.GET("/pending", s.pendingRoute)
}

func (s *Status) nodeRoute(c *gin.Context) {
	node, ok := s.node(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, NodeStatus{
		ID:      node.ID(),
		NodeIDs: s.server.NodeIDs(),
		Values:  len(node.Values()),
	})
}

func (s *Status) valuesRoute(c *gin.Context) {
	node, ok := s.node(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, node.Values())
}

func (s *Status) neighborsRoute(c *gin.Context) {
	node, ok := s.node(c)
	if !ok {
		return
	}
	neighbors := node.NeighborStatus()
	if neighbors == nil {
		neighbors = []broadcast.NeighborStatus{}
	}
	c.JSON(http.StatusOK, neighbors)
}

// neighborRoute returns the values the neighbor is known to have.
func (s *Status) neighborRoute(c *gin.Context) {
	node, ok := s.node(c)
	if !ok {
		return
	}

	id := c.Param("id")
	for _, neighbor := range node.Neighbors() {
		if neighbor == id {
			c.JSON(http.StatusOK, node.Known(id))
			return
		}
	}
	c.Status(http.StatusNotFound)
}

func (s *Status) pendingRoute(c *gin.Context) {
	node, ok := s.node(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, node.Pending())
}

// node returns the broadcast node, or responds with 503 if the node hasn't
// been initialized.
func (s *Status) node(c *gin.Context) (*broadcast.Node, bool) {
	node, ok := s.server.Node()
	if !ok {
		c.Status(http.StatusServiceUnavailable)
		return nil, false
	}
	return node, true
}

var _ status.Handler = &Status{}
