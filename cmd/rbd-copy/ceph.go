package main

import (
	"fmt"

	"github.com/ceph/go-ceph/rados"
)

// radosConn is the part of *rados.Conn that connectOrShutdown needs.
type radosConn interface {
	Connect() error
	Shutdown()
}

// connectOrShutdown runs configure and then connects, shutting conn down if
// either step fails.
func connectOrShutdown(conn radosConn, configure func() error) error {
	if err := configure(); err != nil {
		conn.Shutdown()
		return err
	}
	if err := conn.Connect(); err != nil {
		conn.Shutdown()
		return fmt.Errorf("error connecting to ceph: %w", err)
	}
	return nil
}

func cephConnFromConfig(user, confPath, keyringPath string) (*rados.Conn, error) {
	conn, err := rados.NewConnWithUser(user)
	if err != nil {
		return nil, fmt.Errorf("unable to create ceph connection: %w", err)
	}

	err = connectOrShutdown(conn, func() error {
		if err := conn.ReadConfigFile(confPath); err != nil {
			return fmt.Errorf("error reading ceph config file: %w", err)
		}
		if keyringPath != "" {
			if err := conn.SetConfigOption("keyring", keyringPath); err != nil {
				return fmt.Errorf("error setting keyring: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func cephConnFromOptions(user, monitors, key string) (*rados.Conn, error) {
	conn, err := rados.NewConnWithUser(user)
	if err != nil {
		return nil, fmt.Errorf("unable to create ceph connection: %w", err)
	}

	err = connectOrShutdown(conn, func() error {
		if err := conn.SetConfigOption("mon_host", monitors); err != nil {
			return fmt.Errorf("error setting mon_host: %w", err)
		}
		if err := conn.SetConfigOption("key", key); err != nil {
			return fmt.Errorf("error setting key: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}
