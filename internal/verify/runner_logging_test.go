package verify

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/jkdp/printshop-migrate/internal/database/testutil"
	"github.com/jkdp/printshop-migrate/pkg/logger/mocks"
)

func TestRunner_LogsFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	db, mock := testutil.SetupMockDB(t)
	mock.ExpectQuery(testutil.QueryPattern("SELECT COUNT(*) FROM users AS u")).WillReturnRows(testutil.CountRows(4))

	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().WithField("check", "users/without_roles").Return(log)
	log.EXPECT().WithField("status", StatusFail).Return(log)
	log.EXPECT().WithField("count", int64(4)).Return(log)
	log.EXPECT().Warn("expected 0, found 4")
	log.EXPECT().WithFields(map[string]interface{}{"checks": 1, "failed": 1}).Return(log)
	log.EXPECT().Info("Verification finished")

	report, err := NewRunner(db, log).Run(context.Background(), []Check{findCheck(t, "users/without_roles")})
	require.NoError(t, err)
	require.False(t, report.OK())
}
