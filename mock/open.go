package mock

import (
	"github.com/kbukum/gormock/logger"
)

// Open builds a mock for models from cfg: a DBMock, or an AsyncDBMock when
// cfg.Async is set.
//
//	cfg, err := mock.LoadConfig()
//	...
//	m, err := mock.Open(cfg, []any{&petapp.Human{}, &petapp.Pet{}})
//	defer m.Close()
func Open(cfg Config, models []any, opts ...DataOption) (Mock, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.New(&cfg.Logging, "gormock")

	data, err := NewDataInterface(models, append([]DataOption{WithDataLogger(log)}, opts...)...)
	if err != nil {
		return nil, err
	}
	mockOpts := []Option{WithLogger(log), WithSavepointPrefix(cfg.SavepointPrefix)}
	if cfg.Async {
		return NewAsync(NewAsyncProvider(cfg.Store, log, cfg.WorkerQueue), data, mockOpts...), nil
	}
	return New(NewProvider(cfg.Store, log), data, mockOpts...), nil
}
