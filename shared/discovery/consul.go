// Package discovery registers services with a Consul agent.
package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"

	consul "github.com/hashicorp/consul/api"
)

// Registration describes one service instance.
type Registration struct {
	Name string
	Host string
	Port int
	Tags []string
}

// ID returns the instance id used in the agent catalog.
func (r Registration) ID() string {
	return fmt.Sprintf("%s-%s-%d", r.Name, r.Host, r.Port)
}

// ConsulRegistry registers gRPC services with the local Consul agent and
// attaches a gRPC health check to each of them.
type ConsulRegistry struct {
	client        *consul.Client
	checkInterval time.Duration
}

// NewConsulRegistry creates a registry talking to the agent at address.
func NewConsulRegistry(address string) (*ConsulRegistry, error) {
	cfg := consul.DefaultConfig()
	cfg.Address = address

	client, err := consul.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}

	return &ConsulRegistry{client: client, checkInterval: 10 * time.Second}, nil
}

// Register adds r to the agent catalog.
func (c *ConsulRegistry) Register(r Registration) error {
	addr := net.JoinHostPort(r.Host, strconv.Itoa(r.Port))

	err := c.client.Agent().ServiceRegister(&consul.AgentServiceRegistration{
		ID:      r.ID(),
		Name:    r.Name,
		Address: r.Host,
		Port:    r.Port,
		Tags:    r.Tags,
		Check: &consul.AgentServiceCheck{
			GRPC:                           addr,
			Interval:                       c.checkInterval.String(),
			DeregisterCriticalServiceAfter: "1m",
		},
	})
	if err != nil {
		return fmt.Errorf("register %s: %w", r.ID(), err)
	}

	return nil
}

// Deregister removes r from the agent catalog.
func (c *ConsulRegistry) Deregister(r Registration) error {
	if err := c.client.Agent().ServiceDeregister(r.ID()); err != nil {
		return fmt.Errorf("deregister %s: %w", r.ID(), err)
	}
	return nil
}

// RegistrationFromAddr builds a Registration from a listen address such as
// ":9090". An empty host is replaced by advertiseHost.
func RegistrationFromAddr(name, listenAddr, advertiseHost string) (Registration, error) {
	host, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return Registration{}, fmt.Errorf("parse listen address: %w", err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Registration{}, fmt.Errorf("parse listen port: %w", err)
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = advertiseHost
	}

	return Registration{Name: name, Host: host, Port: port}, nil
}
