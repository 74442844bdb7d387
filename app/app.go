package app

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"cosmossdk.io/core/appmodule"
	"cosmossdk.io/log"
	storetypes "cosmossdk.io/store/types"
	abci "github.com/cometbft/cometbft/abci/types"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/cosmos/cosmos-sdk/baseapp"
	"github.com/cosmos/cosmos-sdk/client"
	"github.com/cosmos/cosmos-sdk/client/grpc/cmtservice"
	nodeservice "github.com/cosmos/cosmos-sdk/client/grpc/node"
	"github.com/cosmos/cosmos-sdk/codec"
	"github.com/cosmos/cosmos-sdk/codec/address"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	"github.com/cosmos/cosmos-sdk/runtime"
	"github.com/cosmos/cosmos-sdk/server/api"
	"github.com/cosmos/cosmos-sdk/server/config"
	servertypes "github.com/cosmos/cosmos-sdk/server/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/module"
	"github.com/cosmos/cosmos-sdk/x/auth"
	authkeeper "github.com/cosmos/cosmos-sdk/x/auth/keeper"
	authtx "github.com/cosmos/cosmos-sdk/x/auth/tx"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	"github.com/cosmos/cosmos-sdk/x/bank"
	bankkeeper "github.com/cosmos/cosmos-sdk/x/bank/keeper"
	banktypes "github.com/cosmos/cosmos-sdk/x/bank/types"
	"github.com/cosmos/cosmos-sdk/x/consensus"
	consensusparamkeeper "github.com/cosmos/cosmos-sdk/x/consensus/keeper"
	consensusparamtypes "github.com/cosmos/cosmos-sdk/x/consensus/types"
	"github.com/cosmos/cosmos-sdk/x/genutil"
	genutiltypes "github.com/cosmos/cosmos-sdk/x/genutil/types"
	"github.com/cosmos/cosmos-sdk/x/staking"
	gogoprotograpc "github.com/cosmos/gogoproto/grpc"

	"github.com/openalpha/termvault/metrics"
	"github.com/openalpha/termvault/x/custody"
	custodykeeper "github.com/openalpha/termvault/x/custody/keeper"
	custodytypes "github.com/openalpha/termvault/x/custody/types"
	"github.com/openalpha/termvault/x/termpool"
	termpoolkeeper "github.com/openalpha/termvault/x/termpool/keeper"
	termpooltypes "github.com/openalpha/termvault/x/termpool/types"
)

const (
	Name = "termvault"
)

var (
	// DefaultNodeHome default home directories for the application daemon
	DefaultNodeHome string

	// ModuleBasics defines the module BasicManager used for codec registration
	ModuleBasics = module.NewBasicManager(
		auth.AppModuleBasic{},
		bank.AppModuleBasic{},
		staking.AppModuleBasic{},
		genutil.NewAppModuleBasic(genutiltypes.DefaultMessageValidator),
		consensus.AppModuleBasic{},
		custody.AppModuleBasic{},
		termpool.AppModuleBasic{},
	)

	// module account permissions. Custody holds pool assets, termpool mints
	// and burns share denoms.
	maccPerms = map[string][]string{
		authtypes.FeeCollectorName: nil,
		custodytypes.ModuleName:    nil,
		termpooltypes.ModuleName:   {authtypes.Minter, authtypes.Burner},
	}
)

func init() {
	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	DefaultNodeHome = filepath.Join(userHomeDir, ".termvault")
}

// App extends an ABCI application
type App struct {
	*baseapp.BaseApp

	legacyAmino       *codec.LegacyAmino
	appCodec          codec.Codec
	interfaceRegistry codectypes.InterfaceRegistry
	txConfig          client.TxConfig

	keys    map[string]*storetypes.KVStoreKey
	tkeys   map[string]*storetypes.TransientStoreKey
	memKeys map[string]*storetypes.MemoryStoreKey

	// SDK Keepers
	ConsensusParamsKeeper consensusparamkeeper.Keeper
	AccountKeeper         authkeeper.AccountKeeper
	BankKeeper            bankkeeper.BaseKeeper

	// Custom module keepers
	CustodyKeeper  *custodykeeper.Keeper
	TermpoolKeeper *termpoolkeeper.Keeper

	custodyModule  custody.AppModule
	termpoolModule termpool.AppModule

	// Module Manager
	BasicModuleManager module.BasicManager
}

// NewApp returns a new App instance
func NewApp(
	logger log.Logger,
	db dbm.DB,
	traceStore io.Writer,
	loadLatest bool,
	appOpts servertypes.AppOptions,
	baseAppOptions ...func(*baseapp.BaseApp),
) *App {
	encodingConfig := MakeEncodingConfig()
	appCodec := encodingConfig.Codec

	bApp := baseapp.NewBaseApp(Name, logger, db, encodingConfig.TxConfig.TxDecoder(), baseAppOptions...)
	bApp.SetCommitMultiStoreTracer(traceStore)
	bApp.SetInterfaceRegistry(encodingConfig.InterfaceRegistry)

	keys := storetypes.NewKVStoreKeys(
		authtypes.StoreKey,
		banktypes.StoreKey,
		consensusparamtypes.StoreKey,
		custodytypes.StoreKey,
		termpooltypes.StoreKey,
	)

	app := &App{
		BaseApp:            bApp,
		legacyAmino:        encodingConfig.Amino,
		appCodec:           appCodec,
		interfaceRegistry:  encodingConfig.InterfaceRegistry,
		txConfig:           encodingConfig.TxConfig,
		keys:               keys,
		tkeys:              storetypes.NewTransientStoreKeys(),
		memKeys:            storetypes.NewMemoryStoreKeys(),
		BasicModuleManager: ModuleBasics,
	}

	// Governance owns params, signer sets and ledger admin changes
	authority := authtypes.NewModuleAddress("gov").String()
	addrPrefix := sdk.GetConfig().GetBech32AccountAddrPrefix()

	app.ConsensusParamsKeeper = consensusparamkeeper.NewKeeper(
		appCodec,
		runtime.NewKVStoreService(keys[consensusparamtypes.StoreKey]),
		authority,
		runtime.EventService{},
	)
	bApp.SetParamStore(app.ConsensusParamsKeeper.ParamsStore)

	app.AccountKeeper = authkeeper.NewAccountKeeper(
		appCodec,
		runtime.NewKVStoreService(keys[authtypes.StoreKey]),
		authtypes.ProtoBaseAccount,
		maccPerms,
		address.NewBech32Codec(addrPrefix),
		addrPrefix,
		authority,
	)

	app.BankKeeper = bankkeeper.NewBaseKeeper(
		appCodec,
		runtime.NewKVStoreService(keys[banktypes.StoreKey]),
		app.AccountKeeper,
		BlockedModuleAccountAddrs(maccPerms),
		authority,
		logger,
	)

	// Custody is built first; it reads pool phases back from termpool
	app.CustodyKeeper = custodykeeper.NewKeeper(
		appCodec,
		keys[custodytypes.StoreKey],
		app.BankKeeper,
		authority,
		logger,
	)
	app.TermpoolKeeper = termpoolkeeper.NewKeeper(
		appCodec,
		keys[termpooltypes.StoreKey],
		app.BankKeeper,
		app.CustodyKeeper,
		authority,
		logger,
	)
	app.CustodyKeeper.SetPhaseReader(app.TermpoolKeeper)
	app.TermpoolKeeper.SetShareAccount(newBankShareAccount(app.BankKeeper))
	app.TermpoolKeeper.SetFeeManager(phaseLog{logger: logger.With("module", "phases")})

	app.custodyModule = custody.NewAppModule(app.CustodyKeeper)
	app.termpoolModule = termpool.NewAppModule(app.TermpoolKeeper)

	authtypes.RegisterQueryServer(bApp.GRPCQueryRouter(), authkeeper.NewQueryServer(app.AccountKeeper))
	banktypes.RegisterQueryServer(bApp.GRPCQueryRouter(), bankkeeper.NewQuerier(&app.BankKeeper))

	app.MountKVStores(keys)
	app.MountTransientStores(app.tkeys)
	app.MountMemoryStores(app.memKeys)

	app.SetInitChainer(app.InitChainer)
	app.SetBeginBlocker(app.BeginBlocker)
	app.SetEndBlocker(app.EndBlocker)

	if loadLatest {
		if err := app.LoadLatestVersion(); err != nil {
			panic(err)
		}
	}

	return app
}

// Name returns the name of the App
func (app *App) Name() string { return app.BaseApp.Name() }

// BeginBlocker executes begin block logic
func (app *App) BeginBlocker(ctx sdk.Context) (sdk.BeginBlock, error) {
	return sdk.BeginBlock{}, nil
}

// EndBlocker records pool value snapshots and block metrics
func (app *App) EndBlocker(ctx sdk.Context) (sdk.EndBlock, error) {
	timer := metrics.NewTimer()

	if err := app.termpoolModule.EndBlocker(ctx); err != nil {
		app.Logger().Error("termpool EndBlocker failed", "block", ctx.BlockHeight(), "error", err)
	}

	collector := metrics.GetCollector()
	collector.RecordEvents(ctx.EventManager().Events())
	collector.RecordPools(app.TermpoolKeeper.GetAllPools(ctx), ctx.BlockTime().Unix())
	collector.RecordEndBlock(ctx.BlockHeight(), timer.ElapsedMs())

	return sdk.EndBlock{}, nil
}

// InitChainer loads the bank, custody and termpool genesis and picks the
// initial validator set
func (app *App) InitChainer(ctx sdk.Context, req *abci.RequestInitChain) (*abci.ResponseInitChain, error) {
	var genesisState map[string]json.RawMessage
	if err := json.Unmarshal(req.AppStateBytes, &genesisState); err != nil {
		return nil, err
	}

	if raw, ok := genesisState[authtypes.ModuleName]; ok {
		var authGenesis authtypes.GenesisState
		if err := app.appCodec.UnmarshalJSON(raw, &authGenesis); err != nil {
			return nil, err
		}
		app.AccountKeeper.InitGenesis(ctx, authGenesis)
	}
	if raw, ok := genesisState[banktypes.ModuleName]; ok {
		var bankGenesis banktypes.GenesisState
		if err := app.appCodec.UnmarshalJSON(raw, &bankGenesis); err != nil {
			return nil, err
		}
		app.BankKeeper.InitGenesis(ctx, &bankGenesis)
	}

	// Ledgers before pools: pool state refers to its ledger
	app.custodyModule.InitGenesis(ctx, app.appCodec,
		moduleGenesis(genesisState, custodytypes.ModuleName, app.custodyModule.AppModuleBasic, app.appCodec))
	app.termpoolModule.InitGenesis(ctx, app.appCodec,
		moduleGenesis(genesisState, termpooltypes.ModuleName, app.termpoolModule.AppModuleBasic, app.appCodec))

	if len(req.Validators) > 0 {
		return &abci.ResponseInitChain{Validators: req.Validators}, nil
	}
	return &abci.ResponseInitChain{Validators: genesisValidators(genesisState)}, nil
}

// moduleGenesis returns the genesis of name, or its default when absent
func moduleGenesis(state map[string]json.RawMessage, name string, basic module.HasGenesisBasics, cdc codec.JSONCodec) json.RawMessage {
	if raw, ok := state[name]; ok {
		return raw
	}
	return basic.DefaultGenesis(cdc)
}

// LoadHeight loads a particular height
func (app *App) LoadHeight(height int64) error {
	return app.LoadVersion(height)
}

// LegacyAmino returns the legacy amino codec
func (app *App) LegacyAmino() *codec.LegacyAmino {
	return app.legacyAmino
}

// AppCodec returns the app codec
func (app *App) AppCodec() codec.Codec {
	return app.appCodec
}

// InterfaceRegistry returns the InterfaceRegistry
func (app *App) InterfaceRegistry() codectypes.InterfaceRegistry {
	return app.interfaceRegistry
}

// RegisterAPIRoutes registers all application module routes
func (app *App) RegisterAPIRoutes(apiSvr *api.Server, apiConfig config.APIConfig) {
	ModuleBasics.RegisterGRPCGatewayRoutes(apiSvr.ClientCtx, apiSvr.GRPCGatewayRouter)
}

// GetKey returns a store key
func (app *App) GetKey(storeKey string) *storetypes.KVStoreKey {
	return app.keys[storeKey]
}

// TxConfig returns the transaction config
func (app *App) TxConfig() client.TxConfig {
	return app.txConfig
}

// AutoCliOpts returns the autocli options for the app
func (app *App) AutoCliOpts() map[string]appmodule.AppModule {
	return map[string]appmodule.AppModule{
		custodytypes.ModuleName:  app.custodyModule,
		termpooltypes.ModuleName: app.termpoolModule,
	}
}

// RegisterTxService implements the Application.RegisterTxService method
func (app *App) RegisterTxService(clientCtx client.Context) {
	authtx.RegisterTxService(app.BaseApp.GRPCQueryRouter(), clientCtx, app.BaseApp.Simulate, app.interfaceRegistry)
}

// RegisterTendermintService implements the Application.RegisterTendermintService method
func (app *App) RegisterTendermintService(clientCtx client.Context) {
	cmtservice.RegisterTendermintService(
		clientCtx,
		app.BaseApp.GRPCQueryRouter(),
		app.interfaceRegistry,
		app.Query,
	)
}

// RegisterNodeService implements the Application.RegisterNodeService method
func (app *App) RegisterNodeService(clientCtx client.Context, cfg config.Config) {
	nodeservice.RegisterNodeService(clientCtx, app.BaseApp.GRPCQueryRouter(), cfg)
}

// RegisterGRPCServer is a no-op: pool and custody operations are served by
// termvault-api.
func (app *App) RegisterGRPCServer(server gogoprotograpc.Server) {}

// SimulationManager returns the app's simulation manager
func (app *App) SimulationManager() *module.SimulationManager {
	return nil
}

// BlockedModuleAccountAddrs returns module account addresses that may not
// receive coins through bank sends
func BlockedModuleAccountAddrs(perms map[string][]string) map[string]bool {
	blocked := make(map[string]bool, len(perms))
	for acc := range perms {
		blocked[authtypes.NewModuleAddress(acc).String()] = true
	}
	return blocked
}
