// Package jobtest provides an in-process fake of the remote job service for
// tests. Every submitted job gets a uuid and answers status checks from a
// script shared by all jobs.
package jobtest

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/CZERTAINLY/Prospect/internal/model"
)

// Reply is one scripted answer to GET /results/:id.
type Reply struct {
	Status int
	Body   any // encoded as JSON, []byte is sent as is
}

func Pending() Reply {
	return Reply{Status: http.StatusAccepted, Body: gin.H{"status": "pending"}}
}

func Done(result model.Result) Reply {
	if result == nil {
		result = model.Result{}
	}
	return Reply{Status: http.StatusOK, Body: result}
}

func Fail(status int) Reply {
	return Reply{Status: status, Body: gin.H{"error": http.StatusText(status)}}
}

type Server struct {
	*httptest.Server

	mx           sync.Mutex
	script       []Reply
	submitStatus int
	jobs         map[string]*job
	order        []string
	filters      []string
}

type job struct {
	replies []Reply
	polls   int
}

// NewServer starts a server answering status checks of every job with
// script, one reply per check. The last reply repeats once the script is
// exhausted; an empty script keeps jobs pending forever.
func NewServer(t testing.TB, script ...Reply) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{
		script: script,
		jobs:   make(map[string]*job),
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.POST("/refresh", s.submit)
	router.GET("/results/:id", s.results)

	s.Server = httptest.NewServer(router)
	t.Cleanup(s.Close)
	return s
}

// FailSubmit makes every following submission answer with status.
func (s *Server) FailSubmit(status int) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.submitStatus = status
}

// Jobs returns ids of the submitted jobs in order.
func (s *Server) Jobs() []string {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]string(nil), s.order...)
}

// Filters returns the filter query of every submission.
func (s *Server) Filters() []string {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]string(nil), s.filters...)
}

// Polls returns the number of status checks of a job.
func (s *Server) Polls(id string) int {
	s.mx.Lock()
	defer s.mx.Unlock()
	if j, ok := s.jobs[id]; ok {
		return j.polls
	}
	return 0
}

func (s *Server) submit(c *gin.Context) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.filters = append(s.filters, c.Query("filter"))

	if s.submitStatus != 0 {
		c.JSON(s.submitStatus, gin.H{"error": http.StatusText(s.submitStatus)})
		return
	}

	id := uuid.NewString()
	s.jobs[id] = &job{replies: append([]Reply(nil), s.script...)}
	s.order = append(s.order, id)
	c.JSON(http.StatusOK, id)
}

func (s *Server) results(c *gin.Context) {
	s.mx.Lock()
	j, ok := s.jobs[c.Param("id")]
	if !ok {
		s.mx.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	j.polls++
	reply := Pending()
	if len(j.replies) > 0 {
		reply = j.replies[0]
		if len(j.replies) > 1 {
			j.replies = j.replies[1:]
		}
	}
	s.mx.Unlock()

	if raw, ok := reply.Body.([]byte); ok {
		c.Data(reply.Status, "application/json", raw)
		return
	}
	c.JSON(reply.Status, reply.Body)
}
