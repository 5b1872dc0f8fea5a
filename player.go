package deepgo

import (
	"math"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/deepgo/deepgo/board"
	"github.com/deepgo/deepgo/features"
	"github.com/deepgo/deepgo/inference"
	"github.com/deepgo/deepgo/mcts"
)

// GameOverReason names why a game ended, reintroduced from
// original_source/cc/mcts_player.h's GameOverReason enum (dropped by the
// spec.md distillation, not excluded by any Non-goal).
type GameOverReason int

// Recognized reasons.
const (
	NoReason GameOverReason = iota
	OpponentResigned
	BothPassed
	MoveLimitReached
)

func (r GameOverReason) String() string {
	switch r {
	case OpponentResigned:
		return "opponent resigned"
	case BothPassed:
		return "both players passed"
	case MoveLimitReached:
		return "move limit reached"
	}
	return "none"
}

// Player orchestrates one game: it owns a search tree, a handle to the
// shared inference scheduler and cache, and the move/time bookkeeping
// spec.md §4.5 describes. The in-scope analogue of agent.go's Agent and
// arena.go's Play loop, trimmed of the two-agent competitive-arena
// bookkeeping (Wins/Loss/Draw, updateThreshold, Example recording) that
// exists only to drive self-play training.
type Player struct {
	Config

	tree    *mcts.Tree
	model   *inference.BatchingModel
	cache   *inference.InferenceCache
	factory *inference.BatchingFactory
	rng     *rand.Rand

	gameOver bool
	reason   GameOverReason
	result   float64 // final score, positive favors Black
}

func (p *Player) ensureRNG() *rand.Rand {
	if p.rng == nil {
		seed := p.RandomSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		p.rng = rand.New(rand.NewSource(seed))
	}
	return p.rng
}

// Position returns the board position at the current root.
func (p *Player) Position() *board.Position { return p.tree.Position(p.tree.Root()) }

// GameOver reports whether the game has ended and why.
func (p *Player) GameOver() (bool, GameOverReason) { return p.gameOver, p.reason }

// Result returns the final Tromp-Taylor score (positive favors Black),
// valid once GameOver reports true.
func (p *Player) Result() float64 { return p.result }

// Close deregisters this player's game from the shared model, letting
// the scheduler drain and shut down once no game refers to it anymore.
func (p *Player) Close() error {
	return p.factory.Release(p.model.Name())
}

// DumpGraph renders the current search tree as a Graphviz DOT document,
// for offline debugging of a stuck or misbehaving search.
func (p *Player) DumpGraph() (string, error) {
	return p.tree.DumpGraph()
}

// temperatureCutoff is the move number beyond which SuggestMove always
// argmaxes, per spec.md §4.5: (N*N)/12.
func (p *Player) temperatureCutoff() int {
	n := p.BoardSize
	return (n * n) / 12
}

// SuggestMove runs search to the configured budget and returns the move
// it recommends, or board.ResignMove if the root's evaluated value falls
// below ResignThreshold.
func (p *Player) SuggestMove() (board.Coord, error) {
	root := p.tree.Root()
	if !p.tree.IsExpanded(root) {
		if err := p.expandRoot(); err != nil {
			return board.InvalidMove, err
		}
	}
	if p.InjectNoise {
		if err := p.tree.InjectDirichletNoise(); err != nil {
			return board.InvalidMove, errors.Wrap(err, "deepgo: injecting root noise")
		}
	}

	deadline, hasDeadline := p.moveDeadline()
	for {
		visits := p.tree.RootVisits()
		var total int32
		for _, v := range visits {
			total += v
		}
		if int(total) >= p.NumReadouts {
			break
		}
		if hasDeadline && time.Now().After(deadline) {
			break
		}
		if err := p.TreeSearch(p.VirtualLosses); err != nil {
			return board.InvalidMove, err
		}
	}

	if p.tree.RootValue() < p.ResignThreshold {
		return board.ResignMove, nil
	}

	return p.pickMove()
}

// moveDeadline applies the seconds_per_move/time_limit/decay_factor
// policy spec.md §4.5 describes: seconds_per_move, if set, fixes a flat
// per-move budget; otherwise time_limit shrinks geometrically by
// decay_factor as the game goes on.
func (p *Player) moveDeadline() (time.Time, bool) {
	if p.SecondsPerMove > 0 {
		return time.Now().Add(time.Duration(p.SecondsPerMove * float64(time.Second))), true
	}
	if p.TimeLimit > 0 {
		budget := p.TimeLimit
		if p.DecayFactor > 0 {
			moveNumber := p.Position().MoveNumber()
			budget *= math.Pow(p.DecayFactor, float64(moveNumber))
		}
		return time.Now().Add(time.Duration(budget * float64(time.Second))), true
	}
	return time.Time{}, false
}

// expandRoot performs the single initial inference spec.md §4.5 step 1
// requires before any search happens, since SelectLeaf would otherwise
// return the (unexpanded) root itself with an empty path.
func (p *Player) expandRoot() error {
	path, _, err := p.tree.SelectLeaf()
	if err != nil {
		return errors.Wrap(err, "deepgo: selecting root for initial expansion")
	}
	return p.inferLeaf(path)
}

// pickMove implements spec.md §4.5 step 5: temperature-weighted sampling
// over board points only (never Pass) before temperatureCutoff when
// soft-pick is enabled, else argmax over every action including Pass.
func (p *Player) pickMove() (board.Coord, error) {
	visits := p.tree.RootVisits()
	n := p.BoardSize
	moveNumber := p.Position().MoveNumber()

	if p.SoftPick && moveNumber < p.temperatureCutoff() {
		const tau = 1.02
		weights := make([]float64, n*n)
		var total float64
		for a := 0; a < n*n; a++ {
			w := math.Pow(float64(visits[a]), 1/tau)
			weights[a] = w
			total += w
		}
		if total > 0 {
			r := p.ensureRNG().Float64() * total
			var cum float64
			for a, w := range weights {
				cum += w
				if r < cum {
					return board.Coord(a), nil
				}
			}
			return board.Coord(n*n - 1), nil
		}
	}

	best := 0
	for a := 1; a < len(visits); a++ {
		if visits[a] > visits[best] {
			best = a
		}
	}
	if best == n*n {
		return board.PassMove, nil
	}
	return board.Coord(best), nil
}

// PlayMove advances the root to c's child, tracking end-of-game
// conditions per spec.md §4.5: two consecutive passes end the game, and
// a resign ends it in the opponent's favor.
func (p *Player) PlayMove(c board.Coord) error {
	if c == board.ResignMove {
		p.gameOver = true
		p.reason = OpponentResigned
		p.result = float64(-p.Position().ToPlay().Sign()) // the mover resigned; the opponent wins
		return nil
	}

	if err := p.tree.PruneToChild(c, p.TreeReuse); err != nil {
		return errors.Wrap(err, "deepgo: playing move")
	}

	pos := p.Position()
	if pos.Ended() {
		p.gameOver = true
		p.reason = BothPassed
		p.result = pos.CalculateScore(p.Komi)
	} else if pos.MoveNumber() >= 2*p.BoardSize*p.BoardSize {
		p.gameOver = true
		p.reason = MoveLimitReached
		p.result = pos.CalculateScore(p.Komi)
	}
	return nil
}

// TreeSearch implements spec.md §4.5's TreeSearch(batch_size): select up
// to 2*batch_size leaves, apply virtual losses, resolve terminals
// immediately, and submit everything else as a single RunMany batch
// before incorporating every result.
func (p *Player) TreeSearch(batchSize int) error {
	maxLeaves := 2 * batchSize
	if maxLeaves <= 0 {
		maxLeaves = 1
	}

	type pending struct {
		path     mcts.Path
		symmetry features.Symmetry
		symFeat  tensor.Tensor
		finger   inference.Fingerprint
	}
	var pendings []pending
	var batch []tensor.Tensor

	for i := 0; i < maxLeaves; i++ {
		path, leaf, err := p.tree.SelectLeaf()
		if err == mcts.ErrMaxDepth {
			sign := scoreSign(p.tree.Position(leaf), p.Komi)
			// backup reverts a virtual loss on every edge, so add one first.
			p.tree.AddVirtualLoss(path)
			if err := p.tree.IncorporateMaxDepthResult(path, leaf, sign); err != nil {
				return errors.Wrap(err, "deepgo: resolving max-depth leaf")
			}
			continue
		}
		if err != nil {
			return errors.Wrap(err, "deepgo: selecting leaf")
		}

		if p.tree.IsGameOver(leaf) {
			pos := p.tree.Position(leaf)
			sign := scoreSign(pos, p.Komi)
			p.tree.AddVirtualLoss(path)
			if err := p.tree.IncorporateEndGameResult(path, leaf, sign); err != nil {
				return errors.Wrap(err, "deepgo: resolving terminal leaf")
			}
			continue
		}

		p.tree.AddVirtualLoss(path)

		sym := features.Identity
		if p.RandomSymmetry {
			sym = features.Symmetry(p.ensureRNG().Intn(features.NumSymmetries))
		}
		hist := features.HistoryFrom(p.tree.Position(leaf))
		feat, err := features.BuildFeatures(hist)
		if err != nil {
			p.tree.RevertVirtualLoss(path)
			return errors.Wrap(err, "deepgo: building features")
		}
		symFeat, err := features.ApplySymmetry(sym, feat)
		if err != nil {
			p.tree.RevertVirtualLoss(path)
			return errors.Wrap(err, "deepgo: applying symmetry")
		}
		finger, err := inference.Fingerprint128(p.model.Name(), symFeat)
		if err != nil {
			p.tree.RevertVirtualLoss(path)
			return errors.Wrap(err, "deepgo: fingerprinting leaf")
		}

		if cachedPolicy, cachedValue, ok := p.cache.Lookup(finger); ok {
			// incorporate's backup reverts the virtual loss added above.
			if err := p.incorporate(path, leaf, sym, cachedPolicy, cachedValue); err != nil {
				return err
			}
			continue
		}

		pendings = append(pendings, pending{path: path, symmetry: sym, symFeat: symFeat, finger: finger})
		batch = append(batch, symFeat)
	}

	if len(batch) == 0 {
		return nil
	}

	outputs, err := p.model.RunMany(batch)
	if err != nil {
		for _, pd := range pendings {
			p.tree.RevertVirtualLoss(pd.path)
		}
		return errors.Wrap(err, "deepgo: running inference batch")
	}

	for i, pd := range pendings {
		out := outputs[i]
		if err := p.cache.Insert(pd.finger, out.Policy, out.Value); err != nil {
			return errors.Wrap(err, "deepgo: caching inference result")
		}
		// incorporate's backup reverts the virtual loss added above.
		leaf := pd.path.Leaf(p.tree)
		if err := p.incorporate(pd.path, leaf, pd.symmetry, out.Policy, out.Value); err != nil {
			return err
		}
	}
	return nil
}

// inferLeaf runs a single synchronous inference for path's leaf as a
// one-input RunMany call on the shared scheduler, without consulting or
// filling the cache — used only for the one-off root expansion spec.md
// §4.5 step 1 calls for.
func (p *Player) inferLeaf(path mcts.Path) error {
	leaf := path.Leaf(p.tree)
	pos := p.tree.Position(leaf)
	hist := features.HistoryFrom(pos)
	feat, err := features.BuildFeatures(hist)
	if err != nil {
		return errors.Wrap(err, "deepgo: building root features")
	}
	sym := features.Identity
	if p.RandomSymmetry {
		sym = features.Symmetry(p.ensureRNG().Intn(features.NumSymmetries))
	}
	symFeat, err := features.ApplySymmetry(sym, feat)
	if err != nil {
		return errors.Wrap(err, "deepgo: applying root symmetry")
	}
	outputs, err := p.model.RunMany([]tensor.Tensor{symFeat})
	if err != nil {
		return errors.Wrap(err, "deepgo: running root inference")
	}
	return p.incorporate(path, leaf, sym, outputs[0].Policy, outputs[0].Value)
}

// incorporate maps a network (or cached) output in symmetry space back
// to the canonical action space and installs it at leaf.
func (p *Player) incorporate(path mcts.Path, leaf mcts.NodeID, sym features.Symmetry, policy []float32, value float32) error {
	canonical, err := features.ApplyInverseToPolicy(sym, p.BoardSize, policy)
	if err != nil {
		return errors.Wrap(err, "deepgo: inverting policy symmetry")
	}
	if err := p.tree.IncorporateResults(path, leaf, canonical, value); err != nil {
		return errors.Wrap(err, "deepgo: incorporating inference result")
	}
	return nil
}

// scoreSign returns the Tromp-Taylor score's sign from pos's mover's
// perspective, used to back up a terminal leaf without a network call.
func scoreSign(pos *board.Position, komi float64) float32 {
	score := pos.CalculateScore(komi)
	var sign float32
	switch {
	case score > 0:
		sign = 1
	case score < 0:
		sign = -1
	}
	return sign * pos.ToPlay().Sign()
}

