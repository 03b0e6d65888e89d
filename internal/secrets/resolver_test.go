package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	values map[string]string
	err    error
	calls  atomic.Int32
	gate   chan struct{}
}

func (f *fakeStore) GetParameter(ctx context.Context, name string) (string, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.values[name], nil
}

func TestChain_FirstNonEmptyWins(t *testing.T) {
	logger := zap.NewNop()
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(keyFile, []byte("from-file\n"), 0o600))

	store := &fakeStore{values: map[string]string{"/param": "from-store"}}

	tests := []struct {
		name      string
		chain     Chain
		want      string
		wantCalls int32
	}{
		{
			name:  "literal first",
			chain: Chain{Literal("direct"), File(keyFile, logger), Parameter(store, "/param")},
			want:  "direct",
		},
		{
			name:  "file when literal empty",
			chain: Chain{Literal(""), File(keyFile, logger), Parameter(store, "/param")},
			want:  "from-file",
		},
		{
			name:      "store when literal and file empty",
			chain:     Chain{Literal(""), File("", logger), Parameter(store, "/param")},
			want:      "from-store",
			wantCalls: 1,
		},
		{
			name:  "missing file is skipped",
			chain: Chain{Literal(""), File(filepath.Join(dir, "missing"), logger)},
			want:  "",
		},
		{
			name:  "nothing configured",
			chain: Chain{Literal(""), File("", logger), Parameter(nil, "/param"), Parameter(store, "")},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store.calls.Store(0)
			got, err := tt.chain.Resolve(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCalls, store.calls.Load())
		})
	}
}

func TestResolver_ResolvesOnceAcrossConcurrentCallers(t *testing.T) {
	store := &fakeStore{
		values: map[string]string{"/key": "pem", "/captcha": "turnstile"},
		gate:   make(chan struct{}),
	}
	r := NewResolver(
		Chain{Parameter(store, "/key")},
		Chain{Parameter(store, "/captcha")},
		zap.NewNop(),
	)

	const callers = 16
	var wg sync.WaitGroup
	results := make([]Bundle, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Resolve(context.Background())
		}(i)
	}

	close(store.gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, Bundle{SigningKey: "pem", CaptchaSecret: "turnstile"}, results[i])
	}
	// One lookup per secret, no matter how many callers raced.
	assert.Equal(t, int32(2), store.calls.Load())

	// Later callers never hit the store again.
	_, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), store.calls.Load())
}

func TestResolver_CancelledCallerDoesNotFailOthers(t *testing.T) {
	store := &fakeStore{
		values: map[string]string{"/key": "pem"},
		gate:   make(chan struct{}),
	}
	r := NewResolver(Chain{Parameter(store, "/key")}, Chain{Literal("turnstile")}, zap.NewNop())

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctxA)
		errA <- err
	}()

	require.Eventually(t, func() bool { return store.calls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		bundle Bundle
		err    error
	}
	resB := make(chan result, 1)
	go func() {
		b, err := r.Resolve(context.Background())
		resB <- result{b, err}
	}()

	time.Sleep(10 * time.Millisecond)
	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(store.gate)
	got := <-resB
	require.NoError(t, got.err)
	assert.Equal(t, Bundle{SigningKey: "pem", CaptchaSecret: "turnstile"}, got.bundle)
	assert.Equal(t, int32(1), store.calls.Load())
}

func TestResolver_FailureIsNotCached(t *testing.T) {
	store := &fakeStore{err: errors.New("access denied")}
	r := NewResolver(Chain{Parameter(store, "/key")}, Chain{Literal("")}, zap.NewNop())

	_, err := r.Resolve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")

	store.err = nil
	store.values = map[string]string{"/key": "pem"}

	b, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pem", b.SigningKey)
	assert.Empty(t, b.CaptchaSecret)
	assert.Equal(t, int32(2), store.calls.Load())
}

func TestResolver_EmptyBundleIsCached(t *testing.T) {
	store := &fakeStore{values: map[string]string{}}
	r := NewResolver(Chain{Parameter(store, "/key")}, Chain{Parameter(store, "/captcha")}, zap.NewNop())

	b, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Bundle{}, b)

	store.values["/key"] = "late"
	b, err = r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Empty(t, b.SigningKey)
}

type fakeSSM struct {
	input *ssm.GetParameterInput
	out   *ssm.GetParameterOutput
	err   error
}

func (f *fakeSSM) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.input = params
	return f.out, f.err
}

func TestSSMStore_GetParameter(t *testing.T) {
	t.Run("decrypts by name", func(t *testing.T) {
		api := &fakeSSM{out: &ssm.GetParameterOutput{
			Parameter: &ssmtypes.Parameter{Value: aws.String("secret-value")},
		}}
		store := &SSMStore{client: api}

		v, err := store.GetParameter(context.Background(), "/proxy/key")
		require.NoError(t, err)
		assert.Equal(t, "secret-value", v)
		assert.Equal(t, "/proxy/key", aws.ToString(api.input.Name))
		assert.True(t, aws.ToBool(api.input.WithDecryption))
	})

	t.Run("missing parameter body", func(t *testing.T) {
		store := &SSMStore{client: &fakeSSM{out: &ssm.GetParameterOutput{}}}

		v, err := store.GetParameter(context.Background(), "/proxy/key")
		require.NoError(t, err)
		assert.Empty(t, v)
	})

	t.Run("api error", func(t *testing.T) {
		store := &SSMStore{client: &fakeSSM{err: errors.New("ParameterNotFound")}}

		_, err := store.GetParameter(context.Background(), "/proxy/key")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "/proxy/key")
	})
}
