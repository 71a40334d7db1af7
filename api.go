package main

import (
	"errors"
	"net/http"

	"github.com/allape/kvmbridge/config"
	"github.com/allape/kvmbridge/kvm/command"
	"github.com/allape/kvmbridge/kvm/conn"
	"github.com/allape/kvmbridge/kvm/device"
	"github.com/allape/kvmbridge/kvm/frame"
	"github.com/allape/kvmbridge/kvm/keymouse"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var (
	ErrNoKeyboard = errors.New("no keyboard driver configured")
	ErrNoMouse    = errors.New("no mouse driver configured")
	ErrNoMonitor  = errors.New("no device driver configured")
)

type daemon struct {
	conf     config.Config
	conn     *conn.Conn
	keyboard keymouse.Keyboard
	mouse    keymouse.Mouse
	monitor  *device.Monitor
	hub      *Hub
}

func (d *daemon) setupRouter() *gin.Engine {
	router := gin.Default()

	if d.conf.Server.Cors {
		router.Use(cors.Default())
	}

	api := router.Group("/api")
	{
		api.GET("/status", d.handleStatus)
		api.GET("/devices", d.handleDevices)
		api.GET("/devices/initial", d.handleInitialDevices)

		api.POST("/keyboard/text", d.handleKeyboardText)
		api.POST("/keyboard/key", d.handleKeyboardKey)

		api.POST("/mouse/absolute", d.handleMouseAbsolute)
		api.POST("/mouse/relative", d.handleMouseRelative)
		api.POST("/mouse/wheel", d.handleMouseWheel)
		api.POST("/mouse/click", d.handleMouseClick)

		api.POST("/chip/reset", d.handleChipReset)
		api.POST("/chip/factory-defaults", d.handleChipFactoryDefaults)
		api.POST("/chip/usb-string", d.handleChipUSBString)
		api.GET("/chip/config", d.handleChipConfig)
	}

	router.GET(d.conf.Server.Path, d.handleWebsocket)

	return router
}

// httpStatus maps driver errors onto response codes: client mistakes to
// 400, a missing or lost device to 503, a silent chip to 504.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, keymouse.ErrUnsupportedCharacter),
		errors.Is(err, keymouse.ErrOutOfRange),
		errors.Is(err, command.ErrInvalidArguments),
		errors.Is(err, command.ErrUnknownCommand),
		errors.Is(err, frame.ErrPayloadTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, conn.ErrNotConnected),
		errors.Is(err, conn.ErrPortUnavailable),
		errors.Is(err, conn.ErrConnectionClosed),
		errors.Is(err, conn.ErrQueueFull),
		errors.Is(err, ErrNoKeyboard),
		errors.Is(err, ErrNoMouse),
		errors.Is(err, ErrNoMonitor):
		return http.StatusServiceUnavailable
	case errors.Is(err, conn.ErrResponseTimeout),
		errors.Is(err, conn.ErrConnectTimeout):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	c.JSON(httpStatus(err), gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func ok(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (d *daemon) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":            d.conn.State().String(),
		"ready":            d.conn.IsReady(),
		"port":             d.conn.PortName(),
		"baud":             d.conn.Baud(),
		"target_connected": d.conn.TargetConnected(),
		"indicators":       d.conn.Indicators(),
	})
}

func (d *daemon) handleDevices(c *gin.Context) {
	if d.monitor == nil {
		fail(c, ErrNoMonitor)
		return
	}
	c.JSON(http.StatusOK, d.monitor.CurrentState())
}

func (d *daemon) handleInitialDevices(c *gin.Context) {
	if d.monitor == nil {
		fail(c, ErrNoMonitor)
		return
	}
	c.JSON(http.StatusOK, d.monitor.InitialState())
}

func (d *daemon) handleKeyboardText(c *gin.Context) {
	if d.keyboard == nil {
		fail(c, ErrNoKeyboard)
		return
	}

	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := d.keyboard.SendText(req.Text); err != nil {
		fail(c, err)
		return
	}
	ok(c)
}

func (d *daemon) handleKeyboardKey(c *gin.Context) {
	if d.keyboard == nil {
		fail(c, ErrNoKeyboard)
		return
	}

	var req struct {
		Key       string   `json:"key" binding:"required"`
		Modifiers []string `json:"modifiers"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	code, mods, found := keymouse.KeyCode(req.Key)
	if !found {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown key: " + req.Key})
		return
	}

	extra, err := keymouse.ParseModifiers(req.Modifiers)
	if err != nil {
		badRequest(c, err)
		return
	}

	if err = d.keyboard.SendKeyPress(code, mods|extra); err != nil {
		fail(c, err)
		return
	}
	ok(c)
}

func (d *daemon) handleMouseAbsolute(c *gin.Context) {
	if d.mouse == nil {
		fail(c, ErrNoMouse)
		return
	}

	var req struct {
		X       int      `json:"x"`
		Y       int      `json:"y"`
		Buttons []string `json:"buttons"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	buttons, err := keymouse.ParseButtons(req.Buttons)
	if err != nil {
		badRequest(c, err)
		return
	}

	if err = d.mouse.SendAbsolute(req.X, req.Y, buttons); err != nil {
		fail(c, err)
		return
	}
	ok(c)
}

func (d *daemon) handleMouseRelative(c *gin.Context) {
	if d.mouse == nil {
		fail(c, ErrNoMouse)
		return
	}

	var req struct {
		DX      int      `json:"dx"`
		DY      int      `json:"dy"`
		Buttons []string `json:"buttons"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	buttons, err := keymouse.ParseButtons(req.Buttons)
	if err != nil {
		badRequest(c, err)
		return
	}

	if err = d.mouse.SendRelative(req.DX, req.DY, buttons); err != nil {
		fail(c, err)
		return
	}
	ok(c)
}

func (d *daemon) handleMouseWheel(c *gin.Context) {
	if d.mouse == nil {
		fail(c, ErrNoMouse)
		return
	}

	var req struct {
		Delta int `json:"delta"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := d.mouse.SendWheel(req.Delta); err != nil {
		fail(c, err)
		return
	}
	ok(c)
}

func (d *daemon) handleMouseClick(c *gin.Context) {
	if d.mouse == nil {
		fail(c, ErrNoMouse)
		return
	}

	var req struct {
		Button string `json:"button" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	button, err := keymouse.ParseButton(req.Button)
	if err != nil {
		badRequest(c, err)
		return
	}

	if err = d.mouse.Click(button); err != nil {
		fail(c, err)
		return
	}
	ok(c)
}

func (d *daemon) handleChipReset(c *gin.Context) {
	if err := d.conn.Reset(); err != nil {
		fail(c, err)
		return
	}
	ok(c)
}

func (d *daemon) handleChipFactoryDefaults(c *gin.Context) {
	if err := d.conn.RestoreFactoryDefaults(); err != nil {
		fail(c, err)
		return
	}
	ok(c)
}

func (d *daemon) handleChipUSBString(c *gin.Context) {
	var req struct {
		Kind string `json:"kind" binding:"required"`
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var kind byte
	switch req.Kind {
	case "manufacturer":
		kind = conn.USBStringManufacturer
	case "product":
		kind = conn.USBStringProduct
	case "serial":
		kind = conn.USBStringSerial
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown usb string kind: " + req.Kind})
		return
	}

	if err := d.conn.SetUSBString(kind, req.Text); err != nil {
		fail(c, err)
		return
	}
	ok(c)
}

func (d *daemon) handleChipConfig(c *gin.Context) {
	cfg, err := d.conn.ParamConfig()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}
