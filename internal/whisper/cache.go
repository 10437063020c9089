package whisper

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Cache memoizes one loaded model. Asking for a different model replaces the
// slot; asking for the same one again reuses it.
type Cache struct {
	engine Engine
	logger *zap.Logger

	mu     sync.Mutex
	key    string
	handle Handle
}

func NewCache(engine Engine, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{engine: engine, logger: logger}
}

// Acquire returns the handle for model, loading it on a miss. The previous
// handle is closed once the replacement has loaded.
func (c *Cache) Acquire(ctx context.Context, model string) (Handle, error) {
	if c.engine == nil {
		return nil, errors.New("no recognition engine configured")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle != nil && c.key == model {
		c.logger.Debug("reusing loaded model", zap.String("model", model))
		return c.handle, nil
	}

	c.logger.Info("loading model", zap.String("model", model))
	handle, err := c.engine.Load(ctx, model)
	if err != nil {
		return nil, err
	}

	if c.handle != nil {
		if err := c.handle.Close(); err != nil {
			c.logger.Warn("failed to release previous model", zap.String("model", c.key), zap.Error(err))
		}
	}

	c.key = model
	c.handle = handle
	c.logger.Info("model loaded", zap.String("model", model))
	return handle, nil
}

// Loaded returns the identifier currently held, or "" when empty.
func (c *Cache) Loaded() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}

func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle == nil {
		return nil
	}
	err := c.handle.Close()
	c.handle = nil
	c.key = ""
	return err
}
