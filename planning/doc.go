// Package planning turns a question into a single design plan.
//
// A Pool runs several Proposers concurrently and keeps every candidate that
// passes both validation tiers; a Selector then asks the generator to score
// the survivors against a fixed rubric and picks one.
//
//	pool := planning.NewPool()
//	plans, err := pool.Collect(ctx, question, proposers, 1)
//	if err != nil {
//		return err
//	}
//
//	plan, rationale, err := planning.NewSelector(gen).Choose(ctx, question, plans)
package planning
