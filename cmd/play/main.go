// Command play is a thin demo CLI: it plays an engine against stdin
// moves on a single board, using a random (weights-free) model per
// spec.md §6's "random:<seed>" descriptor.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/deepgo/deepgo"
	"github.com/deepgo/deepgo/board"
	"github.com/deepgo/deepgo/inference"
)

var (
	boardSize   = flag.Int("board_size", 9, "board size (9, 13, or 19)")
	numReadouts = flag.Int("num_readouts", 200, "MCTS visit budget per engine move")
	modelDesc   = flag.String("model", "random:1", "model descriptor, e.g. random:<seed>")
	komi        = flag.Float64("komi", 7.5, "komi")
	dumpGraph   = flag.String("dump_graph", "", "if set, write the search tree as Graphviz DOT to this path after every engine move")
)

func main() {
	flag.Parse()

	model, err := loadModel(*modelDesc, *boardSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading model: %v\n", err)
		os.Exit(1)
	}

	conf := deepgo.DefaultConfig()
	conf.BoardSize = *boardSize
	conf.NumReadouts = *numReadouts
	conf.Komi = *komi

	engine, err := deepgo.NewEngine(model, conf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error constructing engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	player, err := engine.NewGame()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error starting game: %v\n", err)
		os.Exit(1)
	}
	defer player.Close()

	input := bufio.NewScanner(os.Stdin)
	for {
		if over, reason := player.GameOver(); over {
			fmt.Printf("game over: %s, result %s\n", reason, board.ResultString(player.Result()))
			return
		}

		move, err := player.SuggestMove()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error suggesting move: %v\n", err)
			os.Exit(1)
		}
		if err := player.PlayMove(move); err != nil {
			fmt.Fprintf(os.Stderr, "error playing move %v: %v\n", move, err)
			os.Exit(1)
		}
		fmt.Printf("engine plays %v\n", move)
		fmt.Print(player.Position())

		if *dumpGraph != "" {
			if err := writeGraph(player, *dumpGraph); err != nil {
				fmt.Fprintf(os.Stderr, "error dumping search tree: %v\n", err)
			}
		}

		if over, reason := player.GameOver(); over {
			fmt.Printf("game over: %s, result %s\n", reason, board.ResultString(player.Result()))
			return
		}

		fmt.Print("your move (coordinate index, or 'pass'/'resign'): ")
		if !input.Scan() {
			return
		}
		human, err := parseMove(strings.TrimSpace(input.Text()))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid move: %v\n", err)
			continue
		}
		if err := player.PlayMove(human); err != nil {
			fmt.Fprintf(os.Stderr, "error playing move %v: %v\n", human, err)
			continue
		}
		fmt.Print(player.Position())
	}
}

// writeGraph renders player's current search tree as DOT and writes it
// to path, for offline inspection with a tool like `dot -Tpng`.
func writeGraph(player *deepgo.Player, path string) error {
	dot, err := player.DumpGraph()
	if err != nil {
		return errors.Wrap(err, "rendering search tree")
	}
	return errors.WithStack(ioutil.WriteFile(path, []byte(dot), 0644))
}

func parseMove(text string) (board.Coord, error) {
	switch text {
	case "pass":
		return board.PassMove, nil
	case "resign":
		return board.ResignMove, nil
	}
	v, err := strconv.Atoi(text)
	if err != nil {
		return board.InvalidMove, err
	}
	return board.Coord(v), nil
}

// loadModel resolves a model descriptor. Per spec.md §6, "random:<seed>"
// is the only recognized form without real weights; a bare directory
// path is reserved for a future real-weights backend (out of scope
// here, since Model implementations are an external collaborator).
func loadModel(desc string, boardSize int) (inference.Model, error) {
	actionSpace := boardSize*boardSize + 1
	if strings.HasPrefix(desc, "random:") {
		seedStr := strings.TrimPrefix(desc, "random:")
		seed, err := strconv.ParseInt(seedStr, 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "parsing random seed")
		}
		return inference.NewRandomModel(actionSpace, seed), nil
	}
	return nil, errors.Errorf("unsupported model descriptor %q", desc)
}
