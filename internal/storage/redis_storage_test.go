package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/station-simulator/internal/storage"
)

func newMockedStorage(t *testing.T) (*storage.RedisStorage, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	return &storage.RedisStorage{Client: db}, mock
}

func TestRedisStorage_Presence(t *testing.T) {
	rdb, mock := newMockedStorage(t)
	ctx := context.Background()
	ttl := 5 * time.Minute

	mock.ExpectSet("sim:online:SIM-00001", "simulator-0", ttl).SetVal("OK")
	require.NoError(t, rdb.SetOnline(ctx, "SIM-00001", "simulator-0", ttl))

	mock.ExpectGet("sim:online:SIM-00001").SetVal("simulator-0")
	instanceID, err := rdb.GetOnline(ctx, "SIM-00001")
	require.NoError(t, err)
	assert.Equal(t, "simulator-0", instanceID)

	mock.ExpectDel("sim:online:SIM-00001").SetVal(1)
	require.NoError(t, rdb.DeleteOnline(ctx, "SIM-00001"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStorage_GetOnline_NotFound(t *testing.T) {
	rdb, mock := newMockedStorage(t)

	mock.ExpectGet("sim:online:SIM-00002").RedisNil()
	instanceID, err := rdb.GetOnline(context.Background(), "SIM-00002")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Empty(t, instanceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStorage_GetOnline_Error(t *testing.T) {
	rdb, mock := newMockedStorage(t)

	expectedErr := errors.New("redis get error")
	mock.ExpectGet("sim:online:SIM-00003").SetErr(expectedErr)
	_, err := rdb.GetOnline(context.Background(), "SIM-00003")
	assert.ErrorIs(t, err, expectedErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStorage_SetAuthorizedTags(t *testing.T) {
	rdb, mock := newMockedStorage(t)
	ctx := context.Background()
	ttl := time.Hour

	mock.ExpectDel("sim:authtags:SIM-00001").SetVal(0)
	mock.ExpectSAdd("sim:authtags:SIM-00001", "TAG-1", "TAG-2").SetVal(2)
	mock.ExpectExpire("sim:authtags:SIM-00001", ttl).SetVal(true)
	require.NoError(t, rdb.SetAuthorizedTags(ctx, "SIM-00001", []string{"TAG-1", "TAG-2"}, ttl))

	mock.ExpectSMembers("sim:authtags:SIM-00001").SetVal([]string{"TAG-1", "TAG-2"})
	tags, err := rdb.AuthorizedTags(ctx, "SIM-00001")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"TAG-1", "TAG-2"}, tags)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStorage_SetAuthorizedTags_EmptyClearsList(t *testing.T) {
	rdb, mock := newMockedStorage(t)

	mock.ExpectDel("sim:authtags:SIM-00001").SetVal(1)
	require.NoError(t, rdb.SetAuthorizedTags(context.Background(), "SIM-00001", nil, time.Hour))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStorage_SetOnline_Error(t *testing.T) {
	rdb, mock := newMockedStorage(t)

	expectedErr := errors.New("redis set error")
	mock.ExpectSet("sim:online:SIM-00004", "simulator-1", time.Minute).SetErr(expectedErr)
	err := rdb.SetOnline(context.Background(), "SIM-00004", "simulator-1", time.Minute)
	assert.ErrorIs(t, err, expectedErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStorage_Close(t *testing.T) {
	rdb, mock := newMockedStorage(t)

	assert.NoError(t, rdb.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

// redis.Nil不应漏到调用方
func TestRedisStorage_NilNeverEscapes(t *testing.T) {
	rdb, mock := newMockedStorage(t)

	mock.ExpectGet("sim:online:SIM-00005").RedisNil()
	_, err := rdb.GetOnline(context.Background(), "SIM-00005")
	assert.NotErrorIs(t, err, redis.Nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
