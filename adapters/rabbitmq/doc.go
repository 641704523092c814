/*
Package rabbitmq provides a RabbitMQ notification publisher.
It maps signal messages to AMQP publishings on a topic exchange, includes an
auto-reconnect publisher, and supports optional header propagation via a
signal.HeaderPropagator.
*/
package rabbitmq
