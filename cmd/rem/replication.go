package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cuemby/rem/pkg/replication"
)

var replicateCmd = &cobra.Command{
	Use:   "replicate",
	Short: "Run a replication peer (plaintext loopback smoke test)",
	Long: `replicate serve/connect exercise pkg/replication's StreamSync RPC
end to end. Production peers dial each other over mTLS via
pkg/replication.PeerCA; these commands use plaintext credentials instead,
so they are for local smoke testing only, not for connecting over an
untrusted network.`,
}

var replicateServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept replication connections from peers",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		nodeID, _ := cmd.Flags().GetString("node-id")
		token, _ := cmd.Flags().GetString("token")
		tenant, _ := cmd.Flags().GetString("tenant")

		db, err := openDatabase(dataDir(cmd))
		if err != nil {
			return err
		}
		defer db.Close()

		auth := replication.NewTokenVerifier(map[string]string{tenant: token})
		server := replication.NewServer(db.kv, db.broker, auth, nodeID)

		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		grpcServer := grpc.NewServer()
		replication.RegisterReplicationServer(grpcServer, server)

		errCh := make(chan error, 1)
		go func() {
			fmt.Printf("✓ replication server listening on %s (node %s)\n", addr, nodeID)
			errCh <- grpcServer.Serve(lis)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
			grpcServer.GracefulStop()
			return nil
		case err := <-errCh:
			return err
		}
	},
}

var replicateConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Subscribe to a remote replication server and apply its stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		nodeID, _ := cmd.Flags().GetString("node-id")
		token, _ := cmd.Flags().GetString("token")
		tenant, _ := cmd.Flags().GetString("tenant")

		db, err := openDatabase(dataDir(cmd))
		if err != nil {
			return err
		}
		defer db.Close()

		cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("dial %s: %w", addr, err)
		}
		defer cc.Close()

		client := replication.NewClient(cc, db.kv, nodeID, token)

		ctx, cancel := context.WithCancel(context.Background())
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			fmt.Println("\nShutting down...")
			cancel()
		}()

		fmt.Printf("subscribing to %s for tenant %s as %s\n", addr, tenant, nodeID)
		client.Run(ctx, tenant)
		return nil
	},
}

func init() {
	replicateCmd.AddCommand(replicateServeCmd)
	replicateCmd.AddCommand(replicateConnectCmd)

	for _, cmd := range []*cobra.Command{replicateServeCmd, replicateConnectCmd} {
		cmd.Flags().String("addr", "127.0.0.1:9443", "Replication listen/dial address")
		cmd.Flags().String("node-id", "node-1", "This node's peer/device ID")
		cmd.Flags().String("token", "", "Shared auth token for the tenant")
		cmd.Flags().String("tenant", "default", "Tenant ID to replicate")
	}
}
