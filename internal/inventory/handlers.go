package inventory

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/HerbHall/ipscope/internal/addrspace"
	"github.com/HerbHall/ipscope/internal/server"
	"github.com/HerbHall/ipscope/internal/services"
	"github.com/HerbHall/ipscope/pkg/models"
)

// CreateSubnetRequest is the body of POST /subnets.
type CreateSubnetRequest struct {
	Name     string `json:"name" example:"office-lan"`
	CIDR     string `json:"cidr" example:"192.168.1.0/24"`
	Gateway  string `json:"gateway,omitempty" example:"192.168.1.1"`
	Location string `json:"location,omitempty"`
}

// CreateDeviceRequest is the body of POST /devices.
type CreateDeviceRequest struct {
	Name           string `json:"name" example:"core-switch-01"`
	Hostname       string `json:"hostname,omitempty"`
	IPAddress      string `json:"ip_address,omitempty" example:"192.168.1.10"`
	MACAddress     string `json:"mac_address,omitempty"`
	SubnetID       string `json:"subnet_id,omitempty"`
	AssetType      string `json:"asset_type,omitempty"`
	NetworkLevel   string `json:"network_level,omitempty"`
	DefaultGateway string `json:"default_gateway,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// handleListSubnets returns registered subnets ordered by name.
//
//	@Summary		List subnets
//	@Tags			inventory
//	@Produce		json
//	@Param			limit query int false "Page size" default(50)
//	@Param			offset query int false "Offset" default(0)
//	@Success		200 {array} models.Subnet
//	@Router			/inventory/subnets [get]
func (m *Module) handleListSubnets(w http.ResponseWriter, r *http.Request) {
	res, err := m.subnets.List(r.Context(), listOptions(r))
	if err != nil {
		m.logger.Error("failed to list subnets", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list subnets")
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(res.Total))
	writeJSON(w, http.StatusOK, res.Items)
}

// handleCreateSubnet registers a subnet. The CIDR is stored in canonical
// form and the netmask and capacity are derived from it.
//
//	@Summary		Create subnet
//	@Tags			inventory
//	@Accept			json
//	@Produce		json
//	@Param			body body CreateSubnetRequest true "Subnet"
//	@Success		201 {object} models.Subnet
//	@Failure		400 {object} server.Problem
//	@Failure		409 {object} server.Problem
//	@Router			/inventory/subnets [post]
func (m *Module) handleCreateSubnet(w http.ResponseWriter, r *http.Request) {
	var req CreateSubnetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	info, err := addrspace.Describe(req.CIDR)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Gateway != "" && !addrspace.Contains(req.Gateway, info.CIDR) {
		writeError(w, http.StatusBadRequest, "gateway "+req.Gateway+" is not in "+info.CIDR)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = info.CIDR
	}

	subnet := &models.Subnet{
		Name:       name,
		CIDR:       info.CIDR,
		Gateway:    req.Gateway,
		Netmask:    info.Netmask,
		MaxDevices: info.TotalHosts,
		Location:   req.Location,
	}
	if err := m.subnets.Create(r.Context(), subnet); err != nil {
		m.writeRepoError(w, err, "subnet")
		return
	}
	m.publish(r.Context(), TopicSubnetCreated, subnet)
	m.logger.Info("subnet created", zap.String("subnet_id", subnet.ID), zap.String("cidr", subnet.CIDR))
	writeJSON(w, http.StatusCreated, subnet)
}

// handleGetSubnet returns one subnet.
//
//	@Summary		Get subnet
//	@Tags			inventory
//	@Produce		json
//	@Param			id path string true "Subnet ID"
//	@Success		200 {object} models.Subnet
//	@Failure		404 {object} server.Problem
//	@Router			/inventory/subnets/{id} [get]
func (m *Module) handleGetSubnet(w http.ResponseWriter, r *http.Request) {
	subnet, err := m.subnets.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		m.writeRepoError(w, err, "subnet")
		return
	}
	writeJSON(w, http.StatusOK, subnet)
}

// handleDeleteSubnet removes a subnet. Its devices stay registered without
// a subnet.
//
//	@Summary		Delete subnet
//	@Tags			inventory
//	@Param			id path string true "Subnet ID"
//	@Success		204
//	@Failure		404 {object} server.Problem
//	@Router			/inventory/subnets/{id} [delete]
func (m *Module) handleDeleteSubnet(w http.ResponseWriter, r *http.Request) {
	if err := m.subnets.Delete(r.Context(), r.PathValue("id")); err != nil {
		m.writeRepoError(w, err, "subnet")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListDevices returns registered devices.
//
//	@Summary		List devices
//	@Tags			inventory
//	@Produce		json
//	@Param			subnet_id query string false "Restrict to one subnet"
//	@Param			q query string false "Search name, hostname, IP or MAC"
//	@Param			limit query int false "Page size" default(50)
//	@Param			offset query int false "Offset" default(0)
//	@Success		200 {array} models.Device
//	@Router			/inventory/devices [get]
func (m *Module) handleListDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := services.DeviceFilter{SubnetID: q.Get("subnet_id"), Search: q.Get("q")}
	res, err := m.devices.List(r.Context(), filter, listOptions(r))
	if err != nil {
		m.logger.Error("failed to list devices", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list devices")
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(res.Total))
	writeJSON(w, http.StatusOK, res.Items)
}

// handleCreateDevice registers a device manually. A device in a subnet
// inherits the subnet's netmask and, unless given, its gateway.
//
//	@Summary		Create device
//	@Tags			inventory
//	@Accept			json
//	@Produce		json
//	@Param			body body CreateDeviceRequest true "Device"
//	@Success		201 {object} models.Device
//	@Failure		400 {object} server.Problem
//	@Failure		404 {object} server.Problem
//	@Failure		409 {object} server.Problem
//	@Router			/inventory/devices [post]
func (m *Module) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req CreateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	d := &models.Device{
		Name:            name,
		Hostname:        req.Hostname,
		MACAddress:      req.MACAddress,
		AssetType:       req.AssetType,
		NetworkLevel:    req.NetworkLevel,
		DefaultGateway:  req.DefaultGateway,
		Notes:           req.Notes,
		DiscoveryMethod: models.DiscoveryManual,
	}
	if req.IPAddress != "" {
		ip, err := netip.ParseAddr(strings.TrimSpace(req.IPAddress))
		if err != nil || !ip.Unmap().Is4() {
			writeError(w, http.StatusBadRequest, strconv.Quote(req.IPAddress)+" is not a valid IPv4 address")
			return
		}
		d.IPAddress = ip.Unmap().String()
	}
	if req.SubnetID != "" {
		subnet, err := m.subnets.Get(r.Context(), req.SubnetID)
		if err != nil {
			m.writeRepoError(w, err, "subnet")
			return
		}
		d.SubnetID = subnet.ID
		d.Netmask = subnet.Netmask
		if d.DefaultGateway == "" {
			d.DefaultGateway = subnet.Gateway
		}
	}

	if err := m.devices.Create(r.Context(), d); err != nil {
		m.writeRepoError(w, err, "device")
		return
	}
	m.publish(r.Context(), TopicDeviceCreated, d)
	m.logger.Info("device created", zap.String("device_id", d.ID), zap.String("ip", d.IPAddress))
	writeJSON(w, http.StatusCreated, d)
}

// handleGetDevice returns one device.
//
//	@Summary		Get device
//	@Tags			inventory
//	@Produce		json
//	@Param			id path string true "Device ID"
//	@Success		200 {object} models.Device
//	@Failure		404 {object} server.Problem
//	@Router			/inventory/devices/{id} [get]
func (m *Module) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := m.devices.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		m.writeRepoError(w, err, "device")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleDeleteDevice removes a device, releasing its address.
//
//	@Summary		Delete device
//	@Tags			inventory
//	@Param			id path string true "Device ID"
//	@Success		204
//	@Failure		404 {object} server.Problem
//	@Router			/inventory/devices/{id} [delete]
func (m *Module) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := m.devices.Delete(r.Context(), id); err != nil {
		m.writeRepoError(w, err, "device")
		return
	}
	m.publish(r.Context(), TopicDeviceDeleted, map[string]string{"device_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func listOptions(r *http.Request) services.ListOptions {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return services.ListOptions{Limit: limit, Offset: offset}
}

func (m *Module) writeRepoError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, services.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		m.logger.Error("inventory request failed", zap.String("entity", what), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// -- helpers --

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	server.Error(w, status, detail, "")
}
