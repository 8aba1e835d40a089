/*
Package graph implements the workflow graph that moves a conversation between handler nodes.

A graph is declared with a Builder: named nodes, one start node, and for every node a
Router plus a map from the labels it can emit to the next node (or End). Compile checks
the structure once; Run then walks it for each inbound message:

	state -> node.Invoke -> append messages -> router.Decide -> edge[label] -> next node

A run stops when an edge leads to End, or fails with a StepLimitError after MaxSteps
node invocations.
*/
package graph
