// cmd/agentproof/main.go
//
// Operator CLI. Generates caller keys and issues signed requests against an
// agentproofd node.
package main

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/BuilderBenv1/agentproof/internal/keys"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "keygen":
		cmdKeygen(os.Args[2:])
	case "register":
		cmdRegister(os.Args[2:])
	case "feedback":
		cmdFeedback(os.Args[2:])
	case "validate-request":
		cmdValidateRequest(os.Args[2:])
	case "validate-submit":
		cmdValidateSubmit(os.Args[2:])
	case "stake":
		cmdStake(os.Args[2:])
	case "claim":
		cmdClaim(os.Args[2:])
	case "profile":
		cmdProfile(os.Args[2:])
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`Usage: agentproof <command> [flags]

Commands:
  keygen            generate a caller keypair
  register          register an agent identity
  feedback          submit feedback for an agent
  validate-request  request validation of an agent task
  validate-submit   respond to a validation request
  stake             post an insurance stake
  claim             file a claim against an agent's stake
  profile           fetch an agent profile`)
}

func defaultKeyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot determine home directory: %v\n", err)
		os.Exit(1)
	}
	return filepath.Join(home, ".agentproof", "caller.key")
}

func cmdKeygen(args []string) {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	keyPath := fs.String("key", defaultKeyPath(), "key file path")
	fs.Parse(args)

	if _, err := os.Stat(*keyPath); err == nil {
		fatal("key already exists at %s", *keyPath)
	}
	if err := os.MkdirAll(filepath.Dir(*keyPath), 0o700); err != nil {
		fatal("create key dir: %v", err)
	}
	pub, priv, err := keys.Generate()
	if err != nil {
		fatal("generate: %v", err)
	}
	if err := keys.Save(*keyPath, priv); err != nil {
		fatal("save: %v", err)
	}
	fmt.Printf("key saved to %s\naddress: %s\n", *keyPath, keys.AddressFromPublicKey(pub))
}

func cmdRegister(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	node := fs.String("node", "http://127.0.0.1:8090", "node URL")
	keyPath := fs.String("key", defaultKeyPath(), "key file path")
	uri := fs.String("uri", "", "agent descriptor URI")
	bond := fs.Uint64("bond", 0, "bond amount")
	fs.Parse(args)

	if *uri == "" {
		fatal("-uri required")
	}
	priv := mustLoadKey(*keyPath)
	call(priv, "POST", *node+"/api/agents", map[string]any{"uri": *uri, "bond": *bond})
}

func cmdFeedback(args []string) {
	fs := flag.NewFlagSet("feedback", flag.ExitOnError)
	node := fs.String("node", "http://127.0.0.1:8090", "node URL")
	keyPath := fs.String("key", defaultKeyPath(), "key file path")
	agent := fs.Uint64("agent", 0, "agent ID")
	rating := fs.Uint("rating", 0, "rating in [1,100]")
	evidence := fs.String("evidence", "", "evidence URI")
	taskHash := fs.String("task", "", "task hash")
	fs.Parse(args)

	if *agent == 0 {
		fatal("-agent required")
	}
	priv := mustLoadKey(*keyPath)
	call(priv, "POST", fmt.Sprintf("%s/api/agents/%d/feedback", *node, *agent), map[string]any{
		"rating":       *rating,
		"evidence_uri": *evidence,
		"task_hash":    *taskHash,
	})
}

func cmdValidateRequest(args []string) {
	fs := flag.NewFlagSet("validate-request", flag.ExitOnError)
	node := fs.String("node", "http://127.0.0.1:8090", "node URL")
	keyPath := fs.String("key", defaultKeyPath(), "key file path")
	agent := fs.Uint64("agent", 0, "agent ID")
	taskHash := fs.String("task", "", "task hash")
	taskURI := fs.String("task-uri", "", "task URI")
	fs.Parse(args)

	if *agent == 0 {
		fatal("-agent required")
	}
	priv := mustLoadKey(*keyPath)
	call(priv, "POST", fmt.Sprintf("%s/api/agents/%d/validations", *node, *agent), map[string]any{
		"task_hash": *taskHash,
		"task_uri":  *taskURI,
	})
}

func cmdValidateSubmit(args []string) {
	fs := flag.NewFlagSet("validate-submit", flag.ExitOnError)
	node := fs.String("node", "http://127.0.0.1:8090", "node URL")
	keyPath := fs.String("key", defaultKeyPath(), "key file path")
	validation := fs.Uint64("validation", 0, "validation ID")
	valid := fs.Bool("valid", false, "task completed correctly")
	proof := fs.String("proof", "", "proof URI")
	fs.Parse(args)

	if *validation == 0 {
		fatal("-validation required")
	}
	priv := mustLoadKey(*keyPath)
	call(priv, "POST", fmt.Sprintf("%s/api/validations/%d/response", *node, *validation), map[string]any{
		"is_valid":  *valid,
		"proof_uri": *proof,
	})
}

func cmdStake(args []string) {
	fs := flag.NewFlagSet("stake", flag.ExitOnError)
	node := fs.String("node", "http://127.0.0.1:8090", "node URL")
	keyPath := fs.String("key", defaultKeyPath(), "key file path")
	agent := fs.Uint64("agent", 0, "agent ID")
	tier := fs.String("tier", "unranked", "stake tier")
	amount := fs.Uint64("amount", 0, "stake amount")
	fs.Parse(args)

	if *agent == 0 {
		fatal("-agent required")
	}
	priv := mustLoadKey(*keyPath)
	call(priv, "POST", fmt.Sprintf("%s/api/agents/%d/stake", *node, *agent), map[string]any{
		"tier":   *tier,
		"amount": *amount,
	})
}

func cmdClaim(args []string) {
	fs := flag.NewFlagSet("claim", flag.ExitOnError)
	node := fs.String("node", "http://127.0.0.1:8090", "node URL")
	keyPath := fs.String("key", defaultKeyPath(), "key file path")
	agent := fs.Uint64("agent", 0, "agent ID")
	validation := fs.Uint64("validation", 0, "failed validation ID")
	amount := fs.Uint64("amount", 0, "claim amount")
	evidence := fs.String("evidence", "", "evidence URI")
	fs.Parse(args)

	if *agent == 0 || *validation == 0 {
		fatal("-agent and -validation required")
	}
	priv := mustLoadKey(*keyPath)
	call(priv, "POST", fmt.Sprintf("%s/api/agents/%d/claims", *node, *agent), map[string]any{
		"validation_id": *validation,
		"amount":        *amount,
		"evidence_uri":  *evidence,
	})
}

func cmdProfile(args []string) {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	node := fs.String("node", "http://127.0.0.1:8090", "node URL")
	agent := fs.Uint64("agent", 0, "agent ID")
	fs.Parse(args)

	if *agent == 0 {
		fatal("-agent required")
	}
	resp, err := http.Get(fmt.Sprintf("%s/api/agents/%d", *node, *agent))
	if err != nil {
		fatal("request: %v", err)
	}
	defer resp.Body.Close()
	printResponse(resp)
}

// call issues a signed request and prints the response.
func call(priv ed25519.PrivateKey, method, url string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		fatal("marshal payload: %v", err)
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		fatal("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	keys.SignRequest(req, priv, body)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal("request: %v", err)
	}
	defer resp.Body.Close()
	printResponse(resp)
}

func printResponse(resp *http.Response) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		fatal("read response: %v", err)
	}
	fmt.Printf("%s\n%s\n", resp.Status, string(data))
	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}

func mustLoadKey(path string) ed25519.PrivateKey {
	_, priv, err := keys.Load(path)
	if err != nil {
		fatal("load key (run 'agentproof keygen' first): %v", err)
	}
	return priv
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
