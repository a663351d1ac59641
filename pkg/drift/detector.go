package drift

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roosthq/roost/pkg/log"
	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/types"
)

// DefaultSweepInterval is how often the detector walks the fleet
const DefaultSweepInterval = 10 * time.Minute

// Detector periodically diffs every instance against its declared
// configuration. Between agent reports the install records stand in for
// the deployed extension set.
type Detector struct {
	store   storage.Store
	service *Service
	logger  zerolog.Logger

	sweepInterval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDetector creates the sweep loop
func NewDetector(store storage.Store, service *Service) *Detector {
	return &Detector{
		store:         store,
		service:       service,
		logger:        log.WithComponent("drift"),
		sweepInterval: DefaultSweepInterval,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the sweep loop
func (d *Detector) Start() {
	d.wg.Add(1)
	go d.run()
	d.logger.Info().Dur("interval", d.sweepInterval).Msg("Drift detector started")
}

// Stop halts the sweep loop
func (d *Detector) Stop() {
	close(d.stopCh)
	d.wg.Wait()
}

func (d *Detector) run() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.Sweep()
		}
	}
}

// Sweep diffs every instance the Console knows about
func (d *Detector) Sweep() {
	instances, err := d.store.ListInstances()
	if err != nil {
		d.logger.Error().Err(err).Msg("Failed to list instances")
		return
	}
	for _, inst := range instances {
		if inst.Status == types.StatusUnknown {
			continue
		}
		deployed, err := d.deployedFromRecords(inst)
		if err != nil {
			d.logger.Error().Err(err).Str("instance_id", inst.ID).Msg("Failed to read install records")
			continue
		}
		if _, err := d.service.Detect(inst.ID, deployed); err != nil {
			d.logger.Error().Err(err).Str("instance_id", inst.ID).Msg("Drift detection failed")
		}
	}
}

func (d *Detector) deployedFromRecords(inst *types.Instance) (DeployedState, error) {
	installs, err := d.store.ListExtensionInstallations(inst.ID)
	if err != nil {
		return DeployedState{}, err
	}
	state := DeployedState{ConfigHash: inst.ConfigHash}
	for _, install := range installs {
		state.Extensions = append(state.Extensions, DeployedExtension{
			Slug:    install.Slug,
			Version: install.Version,
		})
	}
	return state, nil
}
