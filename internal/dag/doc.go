// Package dag is the Graph Service (C1). It validates a workflow's node and
// edge set for acyclicity and bad references, and computes the deterministic
// topological batching the Run Coordinator uses to drive execution.
package dag
