package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SekaTable/config"
	"SekaTable/internal/api"
	"SekaTable/internal/auth"
	"SekaTable/internal/game/manager"
	"SekaTable/internal/persist"
	"SekaTable/internal/storage"
	"SekaTable/internal/utils"
	"SekaTable/internal/websocket"

	"golang.org/x/sync/errgroup"
)

func main() {
	config.Load()
	utils.Init(config.C.Log.Level)

	// seka sign <nonce>: print the wallet signature for the platform login
	if len(os.Args) == 3 && os.Args[1] == "sign" {
		sig, err := auth.SignNonce(config.C.Auth.WalletKey, os.Args[2])
		if err != nil {
			utils.Log.Fatal("sign failed", "err", err)
		}
		fmt.Println(sig)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//-------------------------------------------------------
	// 1. Store: redis when configured, memory otherwise
	//-------------------------------------------------------
	var kv storage.KeyValueStore
	if config.C.Redis.Addr != "" {
		rdb, err := storage.NewRedisClient(ctx, config.C.Redis.Addr, config.C.Redis.Password, config.C.Redis.DB)
		if err != nil {
			utils.Log.Fatal("redis init failed", "addr", config.C.Redis.Addr, "err", err)
		}
		defer rdb.Close()
		kv = storage.NewRedisStore(rdb)
	} else {
		utils.Log.Warn("no redis configured, state will not survive a restart")
		kv = storage.NewMemoryStore()
	}
	bridge := persist.NewBridge(kv, config.C.Timing.SnapshotTTL)

	//-------------------------------------------------------
	// 2. Identity
	//-------------------------------------------------------
	identity, err := auth.NewResolver(kv, config.C.Auth.Token, config.C.Auth.Secret).Resolve(ctx)
	if err != nil {
		utils.Log.Fatal("identity", "err", err)
	}
	utils.Log.Info("playing as", "user", identity.UserID, "name", identity.DisplayName)

	tableInfo := manager.TableInfo{
		ID:       config.C.Table.ID,
		Name:     config.C.Table.Name,
		EntryFee: config.C.Table.EntryFee,
	}
	if tableInfo.ID == "" {
		id, ok, err := bridge.ResumeTable(ctx, identity.UserID)
		if err != nil {
			utils.Log.Warn("membership lookup failed", "err", err)
		}
		if !ok {
			utils.Log.Fatal("no table configured, set table.id or SEKA_TABLE_ID")
		}
		utils.Log.Info("resuming seat", "table", id)
		tableInfo = manager.TableInfo{ID: id}
	}

	//-------------------------------------------------------
	// 3. Transport + table manager
	//-------------------------------------------------------
	client := websocket.NewClient(config.C.Server.URL, config.C.Timing.AckTimeout, config.C.Timing.ReconnectBackoff)
	if config.C.Auth.Token != "" {
		client.Header = http.Header{"Authorization": []string{"Bearer " + config.C.Auth.Token}}
	}

	mgr := manager.New(client, bridge, manager.Options{
		Table:    tableInfo,
		Identity: identity,
		Timing:   config.C.Timing,
	})
	mgr.Attach(client)
	if err := mgr.Restore(ctx); err != nil {
		utils.Log.Warn("snapshot restore failed", "err", err)
	}

	//-------------------------------------------------------
	// 4. Local control API
	//-------------------------------------------------------
	srv := &http.Server{
		Addr:    config.C.Server.Port,
		Handler: api.NewRouter(api.NewHandler(mgr)),
	}

	//-------------------------------------------------------
	// 5. Run until interrupted or the table session ends
	//-------------------------------------------------------
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mgr.Run(gctx) })
	g.Go(func() error { return client.Run(gctx) })
	g.Go(func() error {
		utils.Log.Info("control API listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	switch {
	case errors.Is(err, manager.ErrExited):
		utils.Log.Info("session ended", "reason", mgr.ExitReason())
	case err != nil && !errors.Is(err, context.Canceled):
		utils.Log.Error("stopped", "err", err)
		os.Exit(1)
	}
}
