package pipeline

import (
	"context"
	"errors"

	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/pkgd/internal/engine/network"
)

const stateKeyPrefix = "install-state/"

// begin moves every package of an install to installing.
func (i *Installer) begin(ctx context.Context, names []string) error {
	for _, name := range names {
		cur := i.current(ctx, name, domain.StateToInstall)
		if cur == domain.StateInstalling {
			// The lock is held, so an install in progress was interrupted.
			i.Logger.Warn("previous install did not finish", "package", name)
			cur = domain.StateInstallingError
		}
		next, err := cur.Transition(domain.EventQueue)
		if err == nil {
			next, err = next.Transition(domain.EventStart)
		}
		if err != nil {
			return err
		}
		i.setState(ctx, name, next)
	}
	return nil
}

// finish settles the state of every package of an install.
func (i *Installer) finish(ctx context.Context, r *run, runErr error) {
	for _, name := range r.set.Names() {
		event := domain.EventSucceed
		if _, skipped := r.skipped[name]; skipped || runErr != nil {
			event = domain.EventFail
		}
		next, err := domain.StateInstalling.Transition(event)
		if err != nil {
			i.Logger.Warn("install state not updated", "package", name, "error", err)
			continue
		}
		i.setState(ctx, name, next)
	}
}

// current returns the state of name, or fallback when none is known.
func (i *Installer) current(_ context.Context, name string, fallback domain.InstallState) domain.InstallState {
	if st, ok := i.lookupState(name); ok {
		return st
	}
	return fallback
}

// lookupState returns the state held in memory, then the one persisted in the store.
func (i *Installer) lookupState(name string) (domain.InstallState, bool) {
	i.mu.RLock()
	st, ok := i.states[name]
	i.mu.RUnlock()
	if ok {
		return st, true
	}

	data, ok, err := i.Store.Get(stateKeyPrefix + name)
	if err != nil {
		i.Logger.Warn("install state unreadable", "package", name, "error", err)
		return domain.StateToInstall, false
	}
	if !ok {
		return domain.StateToInstall, false
	}
	st, ok = domain.ParseInstallState(string(data))
	if !ok {
		i.Logger.Warn("install state unknown", "package", name, "state", string(data))
		return domain.StateToInstall, false
	}

	i.mu.Lock()
	i.states[name] = st
	i.mu.Unlock()
	return st, true
}

// setState records st for name in memory and in the store. A store failure is logged,
// the in-memory state still applies.
func (i *Installer) setState(ctx context.Context, name string, st domain.InstallState) {
	i.mu.Lock()
	i.states[name] = st
	i.mu.Unlock()

	err := network.Retry(ctx, storeAttempts, func(context.Context) error {
		return i.Store.Put(stateKeyPrefix+name, []byte(st.String()))
	}, func(_ context.Context, err error) bool {
		return errors.Is(err, domain.ErrStoreWriteFailed)
	})
	if err != nil {
		i.Logger.Warn("install state not persisted", "package", name, "state", st.String(), "error", err)
	}
	i.Logger.Debug("install state changed", "package", name, "state", st.String())
}
