package imports

import (
	_ "github.com/ValerySidorin/ackd/connector/impl/amqp091"
	_ "github.com/ValerySidorin/ackd/connector/impl/amqp10"
	_ "github.com/ValerySidorin/ackd/connector/impl/kafka"
	_ "github.com/ValerySidorin/ackd/connector/impl/memory"
	_ "github.com/ValerySidorin/ackd/connector/impl/mqtt"
	_ "github.com/ValerySidorin/ackd/connector/impl/nats"
	_ "github.com/ValerySidorin/ackd/connector/impl/nsq"
	_ "github.com/ValerySidorin/ackd/connector/impl/redis/streams"
)
