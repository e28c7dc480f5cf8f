package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/ctrlmesh/ctrlmesh/accessor"
	"github.com/ctrlmesh/ctrlmesh/node"
	"github.com/ctrlmesh/ctrlmesh/runtime"
	"github.com/ctrlmesh/ctrlmesh/types"
)

// generatorModule owns one feeding accessor and drives it on a fixed tick,
// the application-module analogue of a device poll loop (§4.6 (b)).
type generatorModule struct {
	log    *slog.Logger
	id     node.Identity
	handle *accessor.Handle[float64]
	period time.Duration
	value  float64
}

func newGeneratorModule(log *slog.Logger, id node.Identity, period time.Duration) *generatorModule {
	return &generatorModule{log: log, id: id, handle: accessor.NewHandle[float64](), period: period}
}

func (m *generatorModule) Name() string   { return "generator" }
func (m *generatorModule) Prepare() error { return nil }

func (m *generatorModule) AccessorBindings() []runtime.AccessorInstaller {
	return []runtime.AccessorInstaller{runtime.NewHandleBinding[float64](m.id, m.handle)}
}

func (m *generatorModule) MainLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.value++
			buf := types.NewBuffer[float64](1, 1)
			buf.Data[0][0] = m.value

			if err := m.handle.PreWrite(); err != nil {
				return err
			}
			dataLost, err := m.handle.DoWriteTransfer(buf)
			if err != nil {
				return err
			}
			if err := m.handle.PostWrite(); err != nil {
				return err
			}
			m.log.Debug("published value", "value", m.value, "data_lost", dataLost)
		}
	}
}

// monitorModule owns one consuming accessor and logs every value pushed
// into it, the application-module analogue of a display or alarm handler.
type monitorModule struct {
	log    *slog.Logger
	id     node.Identity
	handle *accessor.Handle[float64]
}

func newMonitorModule(log *slog.Logger, id node.Identity) *monitorModule {
	return &monitorModule{log: log, id: id, handle: accessor.NewHandle[float64]()}
}

func (m *monitorModule) Name() string   { return "monitor" }
func (m *monitorModule) Prepare() error { return nil }

func (m *monitorModule) AccessorBindings() []runtime.AccessorInstaller {
	return []runtime.AccessorInstaller{runtime.NewHandleBinding[float64](m.id, m.handle)}
}

func (m *monitorModule) MainLoop(ctx context.Context) error {
	for {
		if err := m.handle.PreRead(); err != nil {
			return err
		}
		buf, version, ok, err := m.handle.DoReadTransfer(true)
		if err != nil {
			return err
		}
		if err := m.handle.PostRead(); err != nil {
			return err
		}
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			default:
				continue
			}
		}
		m.log.Info("observed setpoint", "value", buf.Data[0][0], "version", version)

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}
