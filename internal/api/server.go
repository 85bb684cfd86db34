// Package api serves config lookups, database administration and kernel
// construction over HTTP.
package api

import (
	"net/http"
	"sort"
	"sync"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samcharles93/convtune/internal/conv"
	"github.com/samcharles93/convtune/internal/convdb"
	"github.com/samcharles93/convtune/internal/device"
	"github.com/samcharles93/convtune/internal/direct"
	"github.com/samcharles93/convtune/internal/logger"
	"github.com/samcharles93/convtune/internal/version"
)

type ServerConfig struct {
	Store convdb.Store
	// OpenDevice returns the device for a name. It is called once per name.
	OpenDevice func(name string) (device.Device, error)
	// Search and SaveRequests are the construct defaults.
	Search       bool
	SaveRequests bool
	Iterations   int
	Seed         int64
	Log          logger.Logger
}

type Server struct {
	cfg ServerConfig
	log logger.Logger

	mu      sync.Mutex
	devices map[string]*deviceSlot
}

// deviceSlot serializes all work against one device and its database files.
type deviceSlot struct {
	mu  sync.Mutex
	dev device.Device
}

func NewServer(cfg ServerConfig) *Server {
	log := cfg.Log
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		cfg:     cfg,
		log:     log,
		devices: make(map[string]*deviceSlot),
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", s.handleMetrics)

	e.GET("/v1/devices/:device/configs", s.handleListConfigs)
	e.GET("/v1/devices/:device/configs/:key", s.handleGetConfig)
	e.PUT("/v1/devices/:device/configs/:key", s.handlePutConfig)
	e.GET("/v1/devices/:device/requests", s.handleListRequests)

	e.POST("/v1/construct", s.handleConstruct)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Resolve(),
	})
}

func (s *Server) handleMetrics(c *echo.Context) error {
	promhttp.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}

// slot returns the lock for name, opening the device on first use when
// withDevice is set.
func (s *Server) slot(name string, withDevice bool) (*deviceSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.devices[name]
	if !ok {
		sl = &deviceSlot{}
		s.devices[name] = sl
	}
	if withDevice && sl.dev == nil {
		if s.cfg.OpenDevice == nil {
			return nil, newInvalidRequest("no device backend configured")
		}
		dev, err := s.cfg.OpenDevice(name)
		if err != nil {
			return nil, err
		}
		sl.dev = dev
	}
	return sl, nil
}

func (s *Server) handleListConfigs(c *echo.Context) error {
	dev, err := deviceParam(c.Param("device"))
	if err != nil {
		return writeErr(c, err)
	}
	sl, _ := s.slot(dev, false)
	sl.mu.Lock()
	db, err := s.cfg.Store.ReadDatabase(dev)
	sl.mu.Unlock()
	if err != nil {
		return writeErr(c, err)
	}
	keys := make([]string, 0, len(db))
	for k := range db {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ConfigList{Device: dev, Configs: make([]ConfigEntry, 0, len(keys))}
	for _, k := range keys {
		out.Configs = append(out.Configs, ConfigEntry{Key: k, Value: db[k]})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetConfig(c *echo.Context) error {
	dev, err := deviceParam(c.Param("device"))
	if err != nil {
		return writeErr(c, err)
	}
	key := c.Param("key")
	if _, err := conv.ParseKey(key); err != nil {
		return writeErr(c, err)
	}
	sl, _ := s.slot(dev, false)
	sl.mu.Lock()
	val, ok, err := s.cfg.Store.Lookup(dev, key)
	sl.mu.Unlock()
	if err != nil {
		return writeErr(c, err)
	}
	if !ok {
		return writeNotFound(c, "no config for "+key+" on "+dev)
	}
	return c.JSON(http.StatusOK, ConfigEntry{Key: key, Value: val})
}

// handlePutConfig stores a tuned value by hand and clears any pending
// request for the key.
func (s *Server) handlePutConfig(c *echo.Context) error {
	dev, err := deviceParam(c.Param("device"))
	if err != nil {
		return writeErr(c, err)
	}
	key := c.Param("key")
	if _, err := conv.ParseKey(key); err != nil {
		return writeErr(c, err)
	}
	req, err := decodeJSON[PutConfigRequest](c.Request().Body)
	if err != nil {
		return writeErr(c, err)
	}
	t, err := conv.ParseTiling(req.Value)
	if err != nil {
		return writeErr(c, err)
	}

	sl, _ := s.slot(dev, false)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if err := s.cfg.Store.Upsert(dev, key, t.String()); err != nil {
		return writeErr(c, err)
	}
	if err := s.cfg.Store.RemoveIfPresent(dev, key); err != nil {
		return writeErr(c, err)
	}
	s.log.Info("config stored", "device", dev, "key", key, "value", t.String())
	return c.JSON(http.StatusOK, ConfigEntry{Key: key, Value: t.String()})
}

func (s *Server) handleListRequests(c *echo.Context) error {
	dev, err := deviceParam(c.Param("device"))
	if err != nil {
		return writeErr(c, err)
	}
	sl, _ := s.slot(dev, false)
	sl.mu.Lock()
	keys, err := s.cfg.Store.ReadRequestLog(dev)
	sl.mu.Unlock()
	if err != nil {
		return writeErr(c, err)
	}
	if keys == nil {
		keys = []string{}
	}
	return c.JSON(http.StatusOK, RequestList{Device: dev, Keys: keys})
}

func (s *Server) handleConstruct(c *echo.Context) error {
	req, err := decodeJSON[ConstructRequest](c.Request().Body)
	if err != nil {
		return writeErr(c, err)
	}
	dev, err := deviceParam(req.Device)
	if err != nil {
		return writeErr(c, err)
	}
	p, err := req.problem()
	if err != nil {
		return writeErr(c, err)
	}

	sl, err := s.slot(dev, true)
	if err != nil {
		return writeErr(c, err)
	}
	search := s.cfg.Search
	if req.Search != nil {
		search = *req.Search
	}
	log := s.log.With("device", dev)

	sl.mu.Lock()
	defer sl.mu.Unlock()
	ctor := &direct.Constructor{
		Device:       sl.dev,
		Store:        s.cfg.Store,
		Search:       search,
		SaveRequests: s.cfg.SaveRequests,
		Searcher: &direct.Searcher{
			Device:   sl.dev,
			Store:    s.cfg.Store,
			Measurer: &direct.DeviceMeasurer{Device: sl.dev, Iterations: s.cfg.Iterations},
			Seed:     s.cfg.Seed,
			Log:      log,
		},
		Log: log,
	}
	sol, err := ctor.Construct(logger.WithContext(c.Request().Context(), log), p)
	if err != nil {
		return writeErr(c, err)
	}
	k := sol.Kernel
	return c.JSON(http.StatusOK, ConstructResponse{
		Device:   dev,
		Solution: sol,
		Kernel: KernelInfo{
			Strategy: k.Strategy.String(),
			File:     k.File,
			Name:     k.Name,
			Flags:    k.Options.String(),
			Local:    k.Local,
			Global:   k.Global,
		},
	})
}

func (r ConstructRequest) problem() (conv.Problem, error) {
	dir := conv.Forward
	if r.Direction != "" {
		d, err := conv.ParseDirection(r.Direction)
		if err != nil {
			return conv.Problem{}, err
		}
		dir = d
	}
	desc := conv.DefaultConvDescriptor()
	desc.PadH, desc.PadW = r.Pad[0], r.Pad[1]
	if r.Stride != [2]int{} {
		desc.StrideU, desc.StrideV = r.Stride[0], r.Stride[1]
	}
	x := conv.Packed(r.Input[0], r.Input[1], r.Input[2], r.Input[3])
	w := conv.Packed(r.Weights[0], r.Weights[1], r.Weights[2], r.Weights[3])
	if dir == conv.Backward {
		if r.Bias {
			return conv.Problem{}, newInvalidRequest("bias is not supported for backward data")
		}
		return conv.NewBackwardDataProblem(x, w, desc, r.DataType)
	}
	return conv.NewForwardProblem(x, w, desc, r.Bias, r.DataType)
}
