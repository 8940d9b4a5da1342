package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"notara.org/internal/ledger"
	"notara.org/internal/ledger/evm"
)

// smoke-chain checks connectivity against a deployed registry contract:
// dials the RPC, verifies code at the contract address and optionally
// resolves a role or a document root.
func main() {
	log.SetFlags(0)
	var (
		rpcURL   = flag.String("rpc", os.Getenv("NOTARA_RPC_URL"), "EVM JSON-RPC endpoint")
		contract = flag.String("contract", os.Getenv("NOTARA_CONTRACT_ADDRESS"), "registry contract address")
		address  = flag.String("address", "", "optional wallet address to resolve a role for")
		rootHash = flag.String("root", "", "optional document root hash to fetch")
	)
	flag.Parse()

	if *rpcURL == "" || *contract == "" {
		log.Fatal("usage: smoke-chain -rpc <url> -contract <address> [-address 0x..] [-root 0x..]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := evm.Dial(ctx, evm.Config{RPCURL: *rpcURL, ContractAddress: *contract})
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer client.Close()

	if err := client.Ping(ctx); err != nil {
		log.Fatalf("ping: %v", err)
	}
	fmt.Printf("chain id: %s\n", client.ChainID())

	if *address != "" {
		role, err := client.RoleOf(ctx, *address)
		if err != nil {
			log.Fatalf("role of %s: %v", *address, err)
		}
		fmt.Printf("role of %s: %s\n", *address, role)
	}

	if *rootHash != "" {
		root, err := client.GetRoot(ctx, *rootHash)
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			fmt.Printf("root %s: not registered\n", *rootHash)
		case err != nil:
			log.Fatalf("get root %s: %v", *rootHash, err)
		default:
			fmt.Printf("root %s: uploader=%s domain=%s revoked=%v versions=%d\n",
				root.RootHash, root.Uploader, root.Domain, root.Revoked, len(root.Versions))
		}
	}

	fmt.Println("ok")
}
