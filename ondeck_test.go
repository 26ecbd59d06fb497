package ondeck

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ondeck-protocol/ondeck/artifact"
	"github.com/ondeck-protocol/ondeck/contract"
	"github.com/ondeck-protocol/ondeck/ledger"
	"github.com/ondeck-protocol/ondeck/ledger/sandbox"
	"github.com/ondeck-protocol/ondeck/setup"
	"github.com/ondeck-protocol/ondeck/testutils"
)

func newTestConfig(t *testing.T) (Config, *sandbox.Chain) {
	t.Helper()
	chain, err := sandbox.New(sandbox.Conf{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = chain.Close() })
	code := contract.Code()
	chain.Register(code, contract.New())
	return Config{
		Account: "cards.test",
		Caller:  "deployer.test",
		Builder: artifact.Static(code),
		Host:    chain,
	}, chain
}

func TestNewValidatesConfig(t *testing.T) {
	conf, _ := newTestConfig(t)

	broken := conf
	broken.Account = ""
	_, err := New(broken)
	require.ErrorContains(t, err, "destination account")

	broken = conf
	broken.Caller = ""
	_, err = New(broken)
	require.ErrorContains(t, err, "caller")

	broken = conf
	broken.Builder = nil
	_, err = New(broken)
	require.ErrorContains(t, err, "artifact builder")

	broken = conf
	broken.Host = nil
	_, err = New(broken)
	require.ErrorContains(t, err, "ledger host")
}

func TestRunBootstrapsEndToEnd(t *testing.T) {
	conf, chain := newTestConfig(t)
	ctx := context.Background()

	p, err := New(conf)
	require.NoError(t, err)
	require.Equal(t, Building, p.State())

	res, err := p.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, Done, res.State)
	require.Equal(t, Done, p.State())
	require.Equal(t, conf.Account, res.Account)
	require.False(t, res.Adopted)
	require.NotEqual(t, [setup.FingerprintSize]byte{}, res.Fingerprint)

	info, err := chain.AccountInfo(ctx, conf.Account)
	require.NoError(t, err)
	require.True(t, info.Exists)
	require.Equal(t, res.ArtifactHash, info.CodeHash)

	stored, err := chain.View(ctx, conf.Account, contract.MethodGetParams, nil)
	require.NoError(t, err)
	bundle, err := setup.Decode(stored)
	require.NoError(t, err)
	require.Equal(t, res.Fingerprint, bundle.Fingerprint())
}

func TestRunIsSingleUse(t *testing.T) {
	conf, _ := newTestConfig(t)
	p, err := New(conf)
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.ErrorContains(t, err, "already ran")
}

func TestSecondRunFailsOnOccupiedAccount(t *testing.T) {
	conf, _ := newTestConfig(t)
	ctx := context.Background()

	first, err := New(conf)
	require.NoError(t, err)
	_, err = first.Run(ctx)
	require.NoError(t, err)

	second, err := New(conf)
	require.NoError(t, err)
	_, err = second.Run(ctx)
	require.ErrorIs(t, err, ErrDeployFailed)
	require.ErrorContains(t, err, "already exists")
	require.Equal(t, Aborted, second.State())
}

func TestBuildFailureAbortsBeforeCeremony(t *testing.T) {
	conf, chain := newTestConfig(t)
	ctx := context.Background()
	conf.Builder = artifact.BuilderFunc(func(context.Context) (*artifact.Artifact, error) {
		return nil, errors.New("compiler exploded")
	})

	p, err := New(conf)
	require.NoError(t, err)
	_, err = p.Run(ctx)
	require.ErrorIs(t, err, ErrBuildFailed)
	require.Equal(t, Aborted, p.State())

	info, err := chain.AccountInfo(ctx, conf.Account)
	require.NoError(t, err)
	require.False(t, info.Exists)
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) {
	return 0, errors.New("no entropy")
}

func TestCeremonyFailureAbortsBeforeDeploy(t *testing.T) {
	conf, chain := newTestConfig(t)
	ctx := context.Background()
	conf.Setup = setup.Conf{Rand: brokenReader{}}

	p, err := New(conf)
	require.NoError(t, err)
	_, err = p.Run(ctx)
	require.ErrorIs(t, err, ErrCeremonyFailed)
	require.Equal(t, Aborted, p.State())

	info, err := chain.AccountInfo(ctx, conf.Account)
	require.NoError(t, err)
	require.False(t, info.Exists)
}

func TestSerializationFailureAbortsBeforeDeploy(t *testing.T) {
	conf, chain := newTestConfig(t)
	ctx := context.Background()
	conf.BundleFile = filepath.Join(t.TempDir(), "no-such-dir", "params.cbor")

	p, err := New(conf)
	require.NoError(t, err)
	_, err = p.Run(ctx)
	require.ErrorIs(t, err, ErrSerializationFailed)
	require.Equal(t, Aborted, p.State())

	info, err := chain.AccountInfo(ctx, conf.Account)
	require.NoError(t, err)
	require.False(t, info.Exists)
}

func TestBundleFileHoldsTheBoundBundle(t *testing.T) {
	conf, _ := newTestConfig(t)
	conf.BundleFile = filepath.Join(t.TempDir(), "params.cbor")

	p, err := New(conf)
	require.NoError(t, err)
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	bundle, err := setup.ReadBundleFile(conf.BundleFile)
	require.NoError(t, err)
	require.Equal(t, res.Fingerprint, bundle.Fingerprint())
}

// raceHost slips a rival's init in front of the pipeline's own.
type raceHost struct {
	ledger.Host
	t     *testing.T
	rival []byte
	raced bool
}

func (h *raceHost) Call(ctx context.Context, caller, account, method string, args []byte) ([]byte, error) {
	if method == contract.MethodInit && !h.raced {
		h.raced = true
		_, err := h.Host.Call(ctx, "rival.test", account, method, h.rival)
		require.NoError(h.t, err)
	}
	return h.Host.Call(ctx, caller, account, method, args)
}

func TestLosingTheInitRaceSurfacesAlreadyInitialized(t *testing.T) {
	conf, chain := newTestConfig(t)
	ctx := context.Background()

	rival, err := setup.Run(setup.Conf{})
	require.NoError(t, err)
	rivalBytes, err := rival.Encode()
	require.NoError(t, err)
	conf.Host = &raceHost{Host: chain, t: t, rival: rivalBytes}

	p, err := New(conf)
	require.NoError(t, err)
	_, err = p.Run(ctx)
	require.ErrorIs(t, err, ErrAlreadyInitialized)
	require.Equal(t, Aborted, p.State())

	// the rival's bundle is what stayed bound
	stored, err := chain.View(ctx, conf.Account, contract.MethodGetParams, nil)
	require.NoError(t, err)
	require.Equal(t, rivalBytes, stored)
}

func TestAdoptExistingRecoversInitializedAccount(t *testing.T) {
	conf, _ := newTestConfig(t)
	ctx := context.Background()

	first, err := New(conf)
	require.NoError(t, err)
	res1, err := first.Run(ctx)
	require.NoError(t, err)

	adopt := conf
	adopt.Policy = AdoptExisting
	second, err := New(adopt)
	require.NoError(t, err)
	res2, err := second.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, Done, second.State())
	require.True(t, res2.Adopted)
	require.Equal(t, res1.Fingerprint, res2.Fingerprint)
}

func TestAdoptExistingFinishesInterruptedRun(t *testing.T) {
	conf, chain := newTestConfig(t)
	ctx := context.Background()

	// a previous run deployed but died before init
	_, err := chain.Deploy(ctx, conf.Account, contract.Code())
	require.NoError(t, err)

	conf.Policy = AdoptExisting
	p, err := New(conf)
	require.NoError(t, err)
	res, err := p.Run(ctx)
	require.NoError(t, err)
	require.False(t, res.Adopted)

	stored, err := chain.View(ctx, conf.Account, contract.MethodGetParams, nil)
	require.NoError(t, err)
	bundle, err := setup.Decode(stored)
	require.NoError(t, err)
	require.Equal(t, res.Fingerprint, bundle.Fingerprint())
}

func TestAdoptExistingRejectsDifferentCode(t *testing.T) {
	conf, chain := newTestConfig(t)
	ctx := context.Background()

	other := []byte("some other contract")
	chain.Register(other, contract.New())
	_, err := chain.Deploy(ctx, conf.Account, other)
	require.NoError(t, err)

	conf.Policy = AdoptExisting
	p, err := New(conf)
	require.NoError(t, err)
	_, err = p.Run(ctx)
	require.ErrorIs(t, err, ErrDeployFailed)
	require.ErrorContains(t, err, "different code")
	require.Equal(t, Aborted, p.State())
}

func TestRunWithDeterministicEntropyReproducesFingerprint(t *testing.T) {
	run := func(account string) [setup.FingerprintSize]byte {
		conf, _ := newTestConfig(t)
		conf.Account = account
		conf.Setup = setup.Conf{Rand: testutils.DeterministicRand([]byte("pipeline seed"))}
		p, err := New(conf)
		require.NoError(t, err)
		res, err := p.Run(context.Background())
		require.NoError(t, err)
		return res.Fingerprint
	}
	require.Equal(t, run("first.test"), run("second.test"))
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		Building:     "building",
		SettingUp:    "setting up",
		Serializing:  "serializing",
		Deploying:    "deploying",
		Initializing: "initializing",
		Done:         "done",
		Aborted:      "aborted",
	} {
		require.Equal(t, want, state.String())
	}
	require.Contains(t, State(42).String(), "unknown")
}
