package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authkit/pkg/config"
)

type successConfig struct {
	TestString string `env:"TEST_STRING_SUCCESS" envDefault:"default_value"`
	TestInt    int    `env:"TEST_INT_SUCCESS" envDefault:"42"`
	TestBool   bool   `env:"TEST_BOOL_SUCCESS" envDefault:"true"`
}

type defaultsConfig struct {
	TestString string `env:"TEST_STRING_DEFAULT" envDefault:"default_value"`
	TestInt    int    `env:"TEST_INT_DEFAULT" envDefault:"42"`
}

type singletonConfig struct {
	Value string `env:"TEST_STRING_SINGLETON" envDefault:"default_value"`
}

type requiredConfig struct {
	Required string `env:"TEST_REQUIRED_VALUE,required"`
}

type customEnvConfig struct {
	TestString string `env:"TEST_CUSTOM_STRING"`
	TestInt    int    `env:"TEST_CUSTOM_INT"`
}

type fileConfig struct {
	Name   string `yaml:"name"`
	Region string `yaml:"region"`
	Limits struct {
		Max int `yaml:"max"`
	} `yaml:"limits"`
	Tags []string `yaml:"tags"`
}

func TestLoad_Success(t *testing.T) {
	t.Setenv("TEST_STRING_SUCCESS", "test_value")
	t.Setenv("TEST_INT_SUCCESS", "100")
	t.Setenv("TEST_BOOL_SUCCESS", "false")

	var cfg successConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "test_value", cfg.TestString)
	assert.Equal(t, 100, cfg.TestInt)
	assert.False(t, cfg.TestBool)
}

func TestLoad_DefaultValues(t *testing.T) {
	var cfg defaultsConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "default_value", cfg.TestString)
	assert.Equal(t, 42, cfg.TestInt)
}

func TestLoad_CachesPerType(t *testing.T) {
	t.Setenv("TEST_STRING_SINGLETON", "first")
	config.ResetCache()

	var first singletonConfig
	require.NoError(t, config.Load(&first))

	t.Setenv("TEST_STRING_SINGLETON", "second")

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var again singletonConfig
			assert.NoError(t, config.Load(&again))
			assert.Equal(t, "first", again.Value)
		}()
	}
	wg.Wait()
}

func TestLoad_MissingRequired(t *testing.T) {
	var cfg requiredConfig
	err := config.Load(&cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrParsingConfig)

	assert.Panics(t, func() {
		var again requiredConfig
		config.MustLoad(&again)
	})
}

func TestLoad_NilPointer(t *testing.T) {
	var cfg *successConfig
	assert.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
}

func TestLoadEnv(t *testing.T) {
	// Variables already present in the environment win over the file.
	t.Setenv("TEST_CUSTOM_STRING", "preset")
	t.Cleanup(func() { _ = os.Unsetenv("TEST_CUSTOM_INT") })

	require.NoError(t, config.LoadEnv("testdata/.env.custom"))

	var cfg customEnvConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "preset", cfg.TestString)
	assert.Equal(t, 1234, cfg.TestInt)

	err := config.LoadEnv("testdata/missing.env")
	assert.ErrorIs(t, err, config.ErrLoadingEnvFile)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	t.Run("decodes over defaults", func(t *testing.T) {
		cfg := fileConfig{Region: "eu"}
		require.NoError(t, config.LoadFile(filepath.Join("testdata", "settings.yaml"), &cfg))
		assert.Equal(t, "from-file", cfg.Name)
		assert.Equal(t, "eu", cfg.Region)
		assert.Equal(t, 5, cfg.Limits.Max)
		assert.Equal(t, []string{"a", "b"}, cfg.Tags)
	})

	t.Run("missing file", func(t *testing.T) {
		var cfg fileConfig
		err := config.LoadFile(filepath.Join("testdata", "nope.yaml"), &cfg)
		assert.ErrorIs(t, err, config.ErrReadingConfigFile)
	})

	t.Run("nil target", func(t *testing.T) {
		assert.ErrorIs(t, config.LoadFile[fileConfig]("x", nil), config.ErrNilPointer)
	})
}
