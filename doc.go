// Package readout implements a probabilistic readout layer: multinomial
// logistic (softmax) regression fitted by second-order Newton-Raphson
// optimization, with a quasi-Newton fallback solver.
//
// The readout is intended to sit atop an arbitrary feature representation,
// such as the hidden state of an upstream model, and turn it into class
// probabilities. Because its gradient and Hessian routines accept per-sample
// weights, the same estimator doubles as the expert component of a
// mixture-of-experts composition.
//
// The algorithmic core lives in the logistic subpackage; preprocessing and
// metrics provide the label encoding and evaluation helpers around it.
package readout
