// Package models owns the Unloaded to Loaded lifecycle of the inference
// models. The first Ensure picks a device and loads every component on it;
// a failure leaves the loader unloaded so that a later request can try again.
package models
